package checkin_test

import (
	"context"
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/core/scan"
	"github.com/pavulla/kiosk/tests"
)

const tick = 2 * time.Millisecond

func newFlow(cam *testutil.FakeCamera, dec scan.Decoder, portal *testutil.FakePortal) *checkin.Flow {
	logger := testutil.Logger()
	session := scan.NewSession(cam, dec, scan.WithSampleInterval(tick), scan.WithLogger(logger))
	return checkin.NewFlow(session, newProtocol(portal), logger)
}

func waitOutcome(t *testing.T, outcomes <-chan checkin.Outcome) checkin.Outcome {
	t.Helper()
	select {
	case o := <-outcomes:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome")
	}
	return checkin.Outcome{}
}

func TestFlow(t *testing.T) {
	frame := testutil.BlankFrame(8, 8)

	tests := []struct {
		name         string
		cam          *testutil.FakeCamera
		setup        func(p *testutil.FakePortal)
		wantKind     checkin.OutcomeKind
		wantReason   string
		wantResult   string
		wantResolves int
		wantConfirms int
		wantAcquired int
		wantReleased int
	}{
		{
			name:         "no camera",
			cam:          &testutil.FakeCamera{Err: scan.ErrNoCamera},
			wantKind:     checkin.OutcomeNoCamera,
			wantReason:   scan.ErrNoCamera.Error(),
			wantAcquired: 0,
		},
		{
			name:         "success",
			cam:          &testutil.FakeCamera{Frames: []*image.RGBA{frame}},
			wantKind:     checkin.OutcomeSuccess,
			wantResult:   `{"ok":true}`,
			wantResolves: 1,
			wantConfirms: 1,
			wantAcquired: 1,
			wantReleased: 1,
		},
		{
			name: "resolve not found",
			cam:  &testutil.FakeCamera{Frames: []*image.RGBA{frame}},
			setup: func(p *testutil.FakePortal) {
				p.ResolveStatus = http.StatusNotFound
			},
			wantKind:     checkin.OutcomeError,
			wantReason:   "resolve failed: unexpected status 404",
			wantResolves: 1,
			wantAcquired: 1,
			wantReleased: 1,
		},
		{
			name: "confirm refused",
			cam:  &testutil.FakeCamera{Frames: []*image.RGBA{frame}},
			setup: func(p *testutil.FakePortal) {
				p.ConfirmStatus = http.StatusConflict
				p.ConfirmBody = `{"error":"already signed"}`
			},
			wantKind:     checkin.OutcomeError,
			wantReason:   "already signed",
			wantResolves: 1,
			wantConfirms: 1,
			wantAcquired: 1,
			wantReleased: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			portal := testutil.NewFakePortal()
			defer portal.Close()
			if tc.setup != nil {
				tc.setup(portal)
			}
			flow := newFlow(tc.cam, testutil.TextDecoder("https://h/x/room-42/scan"), portal)

			outcomes := make(chan checkin.Outcome, 2)
			require.NoError(t, flow.Start(context.Background(), func(o checkin.Outcome) { outcomes <- o }))

			o := waitOutcome(t, outcomes)
			assert.Equal(t, tc.wantKind, o.Kind)
			assert.Equal(t, tc.wantReason, o.Reason)
			if tc.wantResult != "" {
				assert.JSONEq(t, tc.wantResult, string(o.Result))
			}

			<-flow.Done()
			assert.Len(t, outcomes, 0)
			assert.Len(t, portal.Resolves(), tc.wantResolves)
			assert.Len(t, portal.Confirms(), tc.wantConfirms)
			if tc.wantResolves > 0 {
				assert.Equal(t, "room-42", portal.Resolves()[0])
			}
			assert.Equal(t, tc.wantAcquired, tc.cam.Acquired())
			assert.Equal(t, tc.wantReleased, tc.cam.Released())
			assert.Zero(t, tc.cam.DuplicateReleases())

			got, ok := flow.Outcome()
			assert.True(t, ok)
			assert.Equal(t, o, got)
		})
	}
}

func TestFlow_startTwice(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	flow := newFlow(&testutil.FakeCamera{Err: scan.ErrNoCamera}, testutil.TextDecoder(""), portal)

	require.NoError(t, flow.Start(context.Background(), nil))
	assert.Equal(t, checkin.ErrFlowStarted, flow.Start(context.Background(), nil))
}

func TestFlow_stopBeforePayload(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	cam := &testutil.FakeCamera{Frames: []*image.RGBA{testutil.BlankFrame(8, 8)}}
	flow := newFlow(cam, testutil.TextDecoder(""), portal)

	require.NoError(t, flow.Start(context.Background(), func(checkin.Outcome) {
		t.Error("outcome after stop")
	}))
	testutil.Eventually(t, time.Second, func() bool { return cam.Served() > 2 }, "frames sampled")
	flow.Stop()
	<-flow.Done()

	assert.Equal(t, 1, cam.Released())
	assert.Zero(t, cam.DuplicateReleases())
	_, ok := flow.Outcome()
	assert.False(t, ok)
	assert.Equal(t, scan.StateStopped, flow.Snapshot().State)
	assert.Empty(t, portal.Resolves())
}

func TestFlow_stopDuringCheckIn(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	portal.ResolveGate = make(chan struct{})
	cam := &testutil.FakeCamera{Frames: []*image.RGBA{testutil.BlankFrame(8, 8)}}
	flow := newFlow(cam, testutil.TextDecoder("https://h/x/room-42"), portal)

	require.NoError(t, flow.Start(context.Background(), func(checkin.Outcome) {
		t.Error("outcome after stop")
	}))
	testutil.Eventually(t, time.Second, func() bool { return len(portal.Resolves()) == 1 }, "resolve sent")

	snap := flow.Snapshot()
	require.NotNil(t, snap.Payload)
	assert.Equal(t, "room-42", snap.Payload.ExtractedID)
	require.NotNil(t, snap.Attempt)
	assert.Equal(t, checkin.StatusResolving, snap.Attempt.Status)

	flow.Stop()
	close(portal.ResolveGate)
	<-flow.Done()

	// the check-in ran to completion in the background, silently
	o, ok := flow.Outcome()
	require.True(t, ok)
	assert.Equal(t, checkin.OutcomeSuccess, o.Kind)
	assert.Equal(t, 1, cam.Released())
	assert.Zero(t, cam.DuplicateReleases())
}
