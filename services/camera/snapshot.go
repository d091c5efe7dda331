package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/scan"
)

const maxSnapshotSize = 16 << 20

// Snapshot reads frames from an IP camera that serves its current picture at a URL.
type Snapshot struct {
	url    string
	client *http.Client
	logger core.Logger
}

var _ scan.StreamProvider = (*Snapshot)(nil)

func NewSnapshot(url string, logger core.Logger) *Snapshot {
	return &Snapshot{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// RequestStream grabs one picture to check the camera is there and learn its size.
func (sn *Snapshot) RequestStream(ctx context.Context, _ scan.Constraints) (scan.Stream, error) {
	if sn.url == "" {
		return nil, errors.Wrap(scan.ErrNoCamera, "no snapshot url")
	}
	img, err := sn.grab(ctx)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	sn.logger.Debug("camera: snapshot camera opened", map[string]interface{}{"url": sn.url, "size": fmt.Sprintf("%dx%d", b.Dx(), b.Dy())})
	return &snapshotStream{cam: sn, width: b.Dx(), height: b.Dy()}, nil
}

func (sn *Snapshot) ReleaseStream(s scan.Stream) {
	if ss, ok := s.(*snapshotStream); ok {
		ss.mu.Lock()
		ss.released = true
		ss.mu.Unlock()
	}
}

func (sn *Snapshot) grab(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sn.url, nil)
	if err != nil {
		return nil, errors.Wrap(scan.ErrNoCamera, err.Error())
	}
	resp, err := sn.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(scan.ErrNoCamera, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, scan.ErrPermissionDenied
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Wrap(scan.ErrNoCamera, fmt.Sprintf("snapshot status %d", resp.StatusCode))
	}
	return decode(io.LimitReader(resp.Body, maxSnapshotSize))
}

type snapshotStream struct {
	cam           *Snapshot
	width, height int

	mu       sync.Mutex
	released bool
}

func (s *snapshotStream) Size() (int, int) {
	return s.width, s.height
}

func (s *snapshotStream) CaptureInto(ctx context.Context, dst *image.RGBA) error {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return scan.ErrFrameNotReady
	}

	img, err := s.cam.grab(ctx)
	if err != nil {
		return errors.Wrap(scan.ErrFrameNotReady, err.Error())
	}
	blit(dst, img)
	return nil
}
