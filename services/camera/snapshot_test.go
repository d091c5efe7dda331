package camera_test

import (
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavulla/kiosk/core/scan"
	"github.com/pavulla/kiosk/services/camera"
	"github.com/pavulla/kiosk/tests"
)

const scanTick = 2 * time.Millisecond

func TestSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_ = png.Encode(w, testutil.BlankFrame(64, 48))
		case "/locked.png":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	t.Run("streams", func(t *testing.T) {
		cam := camera.NewSnapshot(srv.URL+"/ok.png", testutil.Logger())
		stream, err := cam.RequestStream(context.Background(), scan.DefaultConstraints)
		require.NoError(t, err)

		w, h := stream.Size()
		assert.Equal(t, 64, w)
		assert.Equal(t, 48, h)
		assert.NoError(t, stream.CaptureInto(context.Background(), image.NewRGBA(image.Rect(0, 0, w, h))))

		cam.ReleaseStream(stream)
		assert.Equal(t, scan.ErrFrameNotReady, stream.CaptureInto(context.Background(), image.NewRGBA(image.Rect(0, 0, w, h))))
	})

	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{name: "no url", url: "", wantErr: scan.ErrNoCamera},
		{name: "forbidden", url: srv.URL + "/locked.png", wantErr: scan.ErrPermissionDenied},
		{name: "broken", url: srv.URL + "/broken.png", wantErr: scan.ErrNoCamera},
		{name: "unreachable", url: "http://127.0.0.1:1/x.png", wantErr: scan.ErrNoCamera},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := camera.NewSnapshot(tc.url, testutil.Logger()).RequestStream(context.Background(), scan.DefaultConstraints)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}
