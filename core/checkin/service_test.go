package checkin_test

import (
	"context"
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/checkin"
	"github.com/pavulla/kiosk/core/scan"
	"github.com/pavulla/kiosk/core/user"
	"github.com/pavulla/kiosk/storage/database/inmem"
	"github.com/pavulla/kiosk/tests"
)

var (
	ana   = user.Guest{ID: "g-1", FullName: "Ana", Role: user.RoleGuest}
	admin = user.Guest{ID: "g-9", FullName: "Rui", IsAdmin: true}
)

func newService(cam scan.StreamProvider, dec scan.Decoder, portal *testutil.FakePortal) (*checkin.Service, checkin.Repository) {
	repo := inmemdb.NewCheckinRepository(inmemdb.Open())
	svc := checkin.NewService(checkin.ServiceOptions{
		Provider: cam,
		Decoder:  dec,
		Repo:     repo,
		Endpoints: checkin.Endpoints{
			ScanBaseURL: portal.ScanBaseURL(),
			APIBaseURL:  portal.APIBaseURL(),
			ClientAppID: "kiosk-test",
		},
		NewDoer:        func(string) checkin.Doer { return http.DefaultClient },
		SampleInterval: tick,
		Logger:         testutil.Logger(),
	})
	return svc, repo
}

func waitSettled(t *testing.T, svc *checkin.Service, id string) checkin.ScanView {
	t.Helper()
	var view checkin.ScanView
	testutil.Eventually(t, 5*time.Second, func() bool {
		var err error
		view, err = svc.GetScan(id)
		require.NoError(t, err)
		return view.Outcome != nil
	}, "scan settled")
	return view
}

func TestService_StartScan(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	cam := &testutil.FakeCamera{Frames: []*image.RGBA{testutil.BlankFrame(8, 8)}}
	svc, repo := newService(cam, testutil.TextDecoder("https://h/x/room-42"), portal)

	view, err := svc.StartScan(ana, "tok")
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, ana.ID, view.GuestID)

	view = waitSettled(t, svc, view.ID)
	assert.Equal(t, checkin.OutcomeSuccess, view.Outcome.Kind)
	assert.Equal(t, scan.StateStopped, view.State)
	require.NotNil(t, view.Attempt)
	assert.Equal(t, checkin.StatusSucceeded, view.Attempt.Status)
	assert.Equal(t, "A1", view.Attempt.ResolvedActivityID)

	svc.Close()
	records, err := repo.QueryRecords(context.Background(), nil, checkin.DefaultHistoryOrdering)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, view.ID, rec.ScanID)
	assert.Equal(t, ana.ID, rec.GuestID)
	assert.Equal(t, "Ana", rec.GuestName)
	assert.Equal(t, "https://h/x/room-42", rec.RawText)
	assert.Equal(t, "room-42", rec.ExtractedID)
	assert.Equal(t, "A1", rec.ActivityID)
	assert.Equal(t, checkin.OutcomeSuccess, rec.Outcome)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Result))
}

func TestService_oneScanAtATime(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	cam := &testutil.FakeCamera{Frames: []*image.RGBA{testutil.BlankFrame(8, 8)}}
	svc, _ := newService(cam, testutil.TextDecoder(""), portal)
	defer svc.Close()

	first, err := svc.StartScan(ana, "tok")
	require.NoError(t, err)
	assert.Equal(t, scan.StateStreaming, first.State)

	_, err = svc.StartScan(admin, "tok")
	assert.Equal(t, checkin.ErrScanInProgress, err)

	require.NoError(t, svc.StopScan(first.ID))
	second, err := svc.StartScan(admin, "tok")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, svc.ListScans(), 2)
	assert.Equal(t, 2, cam.Acquired())
	assert.Equal(t, 1, cam.Released())
	assert.Zero(t, cam.DuplicateReleases())
}

func TestService_stopWhileRequesting(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	cam := &testutil.FakeCamera{
		Frames: []*image.RGBA{testutil.BlankFrame(8, 8)},
		Gate:   make(chan struct{}),
	}
	svc, _ := newService(cam, testutil.TextDecoder(""), portal)
	defer svc.Close()

	started := make(chan checkin.ScanView, 1)
	go func() {
		view, err := svc.StartScan(ana, "tok")
		assert.NoError(t, err)
		started <- view
	}()

	var first checkin.ScanView
	testutil.Eventually(t, time.Second, func() bool {
		scans := svc.ListScans()
		if len(scans) == 1 && scans[0].State == scan.StateRequesting {
			first = scans[0]
			return true
		}
		return false
	}, "requesting")
	require.NoError(t, svc.StopScan(first.ID))

	// the camera has not answered the stopped scan yet
	_, err := svc.StartScan(admin, "tok")
	assert.Equal(t, checkin.ErrScanInProgress, err)

	close(cam.Gate)
	<-started
	view, err := svc.Wait(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StateStopped, view.State)
	assert.Nil(t, view.Outcome)

	second, err := svc.StartScan(admin, "tok")
	require.NoError(t, err)
	assert.Equal(t, scan.StateStreaming, second.State)
	require.NoError(t, svc.StopScan(second.ID))

	assert.Equal(t, 1, cam.MaxBusy())
	assert.Equal(t, 2, cam.Acquired())
	assert.Equal(t, 2, cam.Released())
	assert.Zero(t, cam.DuplicateReleases())
}

func TestService_Wait(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()

	t.Run("outcome", func(t *testing.T) {
		cam := &testutil.FakeCamera{Frames: []*image.RGBA{testutil.BlankFrame(8, 8)}}
		svc, _ := newService(cam, testutil.TextDecoder("https://h/x/room-42"), portal)
		defer svc.Close()

		view, err := svc.StartScan(ana, "tok")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		view, err = svc.Wait(ctx, view.ID)
		require.NoError(t, err)
		require.NotNil(t, view.Outcome)
		assert.Equal(t, checkin.OutcomeSuccess, view.Outcome.Kind)
	})

	t.Run("no camera", func(t *testing.T) {
		svc, _ := newService(&testutil.FakeCamera{Err: scan.ErrNoCamera}, testutil.TextDecoder(""), portal)
		defer svc.Close()

		view, err := svc.StartScan(ana, "tok")
		require.NoError(t, err)
		view, err = svc.Wait(context.Background(), view.ID)
		require.NoError(t, err)
		require.NotNil(t, view.Outcome)
		assert.Equal(t, checkin.OutcomeNoCamera, view.Outcome.Kind)
	})

	t.Run("deadline", func(t *testing.T) {
		cam := &testutil.FakeCamera{Frames: []*image.RGBA{testutil.BlankFrame(8, 8)}}
		svc, _ := newService(cam, testutil.TextDecoder(""), portal)
		defer svc.Close()

		view, err := svc.StartScan(ana, "tok")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		view, err = svc.Wait(ctx, view.ID)
		assert.Equal(t, context.DeadlineExceeded, err)
		assert.Equal(t, scan.StateStreaming, view.State)
		assert.Nil(t, view.Outcome)
	})

	t.Run("unknown scan", func(t *testing.T) {
		svc, _ := newService(&testutil.FakeCamera{}, testutil.TextDecoder(""), portal)
		defer svc.Close()

		_, err := svc.Wait(context.Background(), "nope")
		assert.Equal(t, checkin.ErrNotFound, err)
	})
}

func TestService_noCamera(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	svc, repo := newService(&testutil.FakeCamera{Err: scan.ErrPermissionDenied}, testutil.TextDecoder(""), portal)

	view, err := svc.StartScan(ana, "tok")
	require.NoError(t, err)
	assert.Equal(t, scan.StateFailed, view.State)
	require.NotNil(t, view.Outcome)
	assert.Equal(t, checkin.OutcomeNoCamera, view.Outcome.Kind)

	// the camera is free again: another guest may retry
	_, err = svc.StartScan(admin, "tok")
	assert.NoError(t, err)

	svc.Close()
	assert.Empty(t, portal.Resolves())
	records, err := repo.QueryRecords(context.Background(), &checkin.QueryFilter{GuestID: ana.ID}, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, checkin.OutcomeNoCamera, records[0].Outcome)
}

func TestService_errors(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	svc, _ := newService(&testutil.FakeCamera{}, testutil.TextDecoder(""), portal)
	defer svc.Close()

	_, err := svc.StartScan(user.Guest{ID: "g-2", Role: user.RoleReception}, "tok")
	assert.Equal(t, checkin.ErrForbidden, err)

	_, err = svc.GetScan("nope")
	assert.Equal(t, checkin.ErrNotFound, err)

	assert.Equal(t, checkin.ErrNotFound, svc.StopScan("nope"))
}

func TestService_History(t *testing.T) {
	portal := testutil.NewFakePortal()
	defer portal.Close()
	svc, repo := newService(&testutil.FakeCamera{}, testutil.TextDecoder(""), portal)
	defer svc.Close()

	base := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, rec := range []checkin.Record{
		{GuestID: "g-1", Outcome: checkin.OutcomeSuccess},
		{GuestID: "g-2", Outcome: checkin.OutcomeError, Reason: "already signed"},
		{GuestID: "g-1", Outcome: checkin.OutcomeNoCamera},
	} {
		rec.StartedAt = base.Add(time.Duration(i) * time.Hour)
		rec.FinishedAt = rec.StartedAt.Add(time.Minute)
		_, err := repo.CreateRecord(context.Background(), rec)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		filter   *checkin.QueryFilter
		ordering []core.DBOrdering
		want     []string // guest_id/outcome
	}{
		{name: "all, newest first", want: []string{"g-1/no-camera", "g-2/error", "g-1/success"}},
		{
			name:     "oldest first",
			ordering: []core.DBOrdering{{Field: "started_at", Ascending: true}},
			want:     []string{"g-1/success", "g-2/error", "g-1/no-camera"},
		},
		{name: "by guest", filter: &checkin.QueryFilter{GuestID: "g-1"}, want: []string{"g-1/no-camera", "g-1/success"}},
		{
			name:   "by outcomes",
			filter: &checkin.QueryFilter{Outcomes: []checkin.OutcomeKind{checkin.OutcomeSuccess, checkin.OutcomeError}},
			want:   []string{"g-2/error", "g-1/success"},
		},
		{
			name:   "date range",
			filter: &checkin.QueryFilter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)},
			want:   []string{"g-2/error"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			records, err := svc.History(context.Background(), tc.filter, tc.ordering)
			require.NoError(t, err)
			got := make([]string, 0, len(records))
			for _, rec := range records {
				got = append(got, rec.GuestID+"/"+string(rec.Outcome))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
