package checkin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/scan"
	"github.com/pavulla/kiosk/core/user"
)

const DefaultRetention = 10 * time.Minute

var (
	ErrScanInProgress = errors.New("a scan is already in progress")
	ErrNotFound       = errors.New("scan not found")
	ErrForbidden      = errors.New("guest is not allowed to scan")

	NowFunc = time.Now // mockable
)

type (
	// DoerFactory returns an HTTP doer that authenticates API requests with `token`.
	DoerFactory func(token string) Doer

	ServiceOptions struct {
		Provider       scan.StreamProvider
		Decoder        scan.Decoder
		Repo           Repository
		Endpoints      Endpoints
		NewDoer        DoerFactory
		SampleInterval time.Duration
		Constraints    scan.Constraints
		Retention      time.Duration // how long settled scans stay readable
		Logger         core.Logger
	}

	// ScanView is what clients see of a scan.
	ScanView struct {
		ID        string    `json:"id"`
		GuestID   string    `json:"guest_id"`
		StartedAt time.Time `json:"started_at"`
		Snapshot
	}

	entry struct {
		id        string
		guest     user.Guest
		startedAt time.Time
		flow      *Flow
		started   chan struct{} // closed once flow.Start has returned
		settledAt time.Time
	}
)

// Service runs guest check-ins on the kiosk camera. The camera serves one scan at a time.
type Service struct {
	opts ServiceOptions
	ctx  context.Context // parent of every flow; cancelled by Close
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	scans  map[string]*entry
	active string
}

func NewService(opts ServiceOptions) *Service {
	if opts.Decoder == nil {
		opts.Decoder = scan.NewQRDecoder()
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Constraints == (scan.Constraints{}) {
		opts.Constraints = scan.DefaultConstraints
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		opts:  opts,
		ctx:   ctx,
		stop:  stop,
		scans: make(map[string]*entry),
	}
}

// StartScan opens the camera for `guest`, who is authenticated with the portal by `token`.
// It returns once the camera is streaming, or has failed: the view then carries a no-camera outcome.
func (svc *Service) StartScan(guest user.Guest, token string) (ScanView, error) {
	if !guest.CanScan() {
		return ScanView{}, ErrForbidden
	}

	svc.mu.Lock()
	svc.prune()
	if cur, ok := svc.scans[svc.active]; ok && cur.holdsCamera() {
		svc.mu.Unlock()
		return ScanView{}, ErrScanInProgress
	}

	protocol := NewProtocol(svc.opts.NewDoer(token), svc.opts.Endpoints, svc.opts.Logger)
	session := scan.NewSession(svc.opts.Provider, svc.opts.Decoder,
		scan.WithSampleInterval(svc.opts.SampleInterval),
		scan.WithConstraints(svc.opts.Constraints),
		scan.WithLogger(svc.opts.Logger),
	)
	e := &entry{
		id:        uuid.New().String(),
		guest:     guest,
		startedAt: NowFunc().UTC(),
		flow:      NewFlow(session, protocol, svc.opts.Logger),
		started:   make(chan struct{}),
	}
	svc.scans[e.id] = e
	svc.active = e.id
	svc.mu.Unlock()

	svc.opts.Logger.Info("checkin: scan started", guest, map[string]interface{}{"scan": e.id})
	err := e.flow.Start(svc.ctx, nil)
	close(e.started)
	if err != nil {
		svc.mu.Lock()
		delete(svc.scans, e.id)
		svc.mu.Unlock()
		return ScanView{}, errors.Wrap(err, "starting scan")
	}

	svc.wg.Add(1)
	go svc.record(e)
	return svc.view(e), nil
}

func (svc *Service) GetScan(id string) (ScanView, error) {
	svc.mu.Lock()
	e, ok := svc.scans[id]
	svc.mu.Unlock()
	if !ok {
		return ScanView{}, ErrNotFound
	}
	return svc.view(e), nil
}

// Wait blocks until the scan is over, or ctx ends, and returns its latest view.
// A scan is over once it has an outcome or has been stopped; its camera is then released.
func (svc *Service) Wait(ctx context.Context, id string) (ScanView, error) {
	svc.mu.Lock()
	e, ok := svc.scans[id]
	svc.mu.Unlock()
	if !ok {
		return ScanView{}, ErrNotFound
	}

	select {
	case <-e.started:
	case <-ctx.Done():
		return svc.view(e), ctx.Err()
	}
	select {
	case <-e.flow.Done():
		return svc.view(e), nil
	case <-ctx.Done():
		return svc.view(e), ctx.Err()
	}
}

// StopScan releases the camera. A check-in already sent to the portal is not cancelled.
func (svc *Service) StopScan(id string) error {
	svc.mu.Lock()
	e, ok := svc.scans[id]
	svc.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.flow.Stop()
	return nil
}

// ListScans returns the scans still in memory, newest first.
func (svc *Service) ListScans() []ScanView {
	svc.mu.Lock()
	entries := make([]*entry, 0, len(svc.scans))
	for _, e := range svc.scans {
		entries = append(entries, e)
	}
	svc.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].startedAt.After(entries[j].startedAt) })
	views := make([]ScanView, 0, len(entries))
	for _, e := range entries {
		views = append(views, svc.view(e))
	}
	return views
}

func (svc *Service) History(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error) {
	if len(ordering) == 0 {
		ordering = DefaultHistoryOrdering
	}
	return svc.opts.Repo.QueryRecords(ctx, filter, ordering)
}

// Close stops every scan and cancels pending check-ins, then waits for their history records.
func (svc *Service) Close() {
	svc.mu.Lock()
	entries := make([]*entry, 0, len(svc.scans))
	for _, e := range svc.scans {
		entries = append(entries, e)
	}
	svc.mu.Unlock()

	for _, e := range entries {
		e.flow.Stop()
	}
	svc.stop()
	svc.wg.Wait()
}

func (svc *Service) view(e *entry) ScanView {
	return ScanView{
		ID:        e.id,
		GuestID:   e.guest.ID,
		StartedAt: e.startedAt,
		Snapshot:  e.flow.Snapshot(),
	}
}

// record waits for the flow to settle and stores its outcome.
func (svc *Service) record(e *entry) {
	defer svc.wg.Done()
	<-e.flow.Done()

	now := NowFunc().UTC()
	svc.mu.Lock()
	e.settledAt = now
	svc.mu.Unlock()

	snap := e.flow.Snapshot()
	if snap.Outcome == nil {
		svc.opts.Logger.Info("checkin: scan cancelled", e.guest, map[string]interface{}{"scan": e.id})
		return
	}

	rec := Record{
		ScanID:     e.id,
		GuestID:    e.guest.ID,
		GuestName:  e.guest.FullName,
		Outcome:    snap.Outcome.Kind,
		Reason:     snap.Outcome.Reason,
		Result:     snap.Outcome.Result,
		StartedAt:  e.startedAt,
		FinishedAt: now,
	}
	if snap.Payload != nil {
		rec.RawText = snap.Payload.RawText
		rec.ExtractedID = snap.Payload.ExtractedID
	}
	if snap.Attempt != nil {
		rec.ActivityID = snap.Attempt.ResolvedActivityID
	}

	// the service context may already be cancelled by Close
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := svc.opts.Repo.CreateRecord(ctx, rec); err != nil {
		svc.opts.Logger.Error("checkin: recording outcome", err, e.guest, map[string]interface{}{"scan": e.id})
		return
	}
	svc.opts.Logger.Info("checkin: scan settled", e.guest, map[string]interface{}{"scan": e.id, "outcome": rec.Outcome})
}

// prune drops settled scans older than the retention period; svc.mu must be held.
func (svc *Service) prune() {
	cutoff := NowFunc().UTC().Add(-svc.opts.Retention)
	for id, e := range svc.scans {
		if !e.settledAt.IsZero() && e.settledAt.Before(cutoff) {
			delete(svc.scans, id)
		}
	}
}

// holdsCamera reports whether the scan is still using, or about to use, the camera.
// A stopped scan holds it until its flow is done: the camera may still answer an abandoned request.
func (e *entry) holdsCamera() bool {
	switch e.flow.Snapshot().State {
	case scan.StateIdle, scan.StateRequesting, scan.StateStreaming:
		return true
	}
	select {
	case <-e.flow.Done():
		return false
	default:
		return true
	}
}
