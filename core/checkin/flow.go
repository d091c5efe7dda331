package checkin

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/pavulla/kiosk/core"
	"github.com/pavulla/kiosk/core/scan"
)

var ErrFlowStarted = errors.New("check-in flow already started")

// Snapshot is a point-in-time view of a Flow.
type Snapshot struct {
	State   scan.State    `json:"state"`
	Payload *scan.Payload `json:"payload,omitempty"`
	Attempt *Attempt      `json:"attempt,omitempty"`
	Outcome *Outcome      `json:"outcome,omitempty"`
}

// Flow ties a scan session to the check-in protocol: the first identifier read from the camera
// is resolved and confirmed, and exactly one Outcome is reported.
// A Flow is single-use.
type Flow struct {
	session  *scan.Session
	protocol *Protocol
	logger   core.Logger

	mu        sync.Mutex
	started   bool
	closed    bool
	onOutcome func(Outcome)
	payload   *scan.Payload
	attempt   *Attempt
	outcome   *Outcome
}

func NewFlow(session *scan.Session, protocol *Protocol, logger core.Logger) *Flow {
	return &Flow{session: session, protocol: protocol, logger: logger}
}

// Start opens the camera. ctx bounds the whole flow, including the check-in requests:
// callers should not pass a request-scoped context.
// onOutcome is called at most once and never after Stop.
func (f *Flow) Start(ctx context.Context, onOutcome func(Outcome)) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrFlowStarted
	}
	f.started = true
	f.onOutcome = onOutcome
	f.mu.Unlock()

	return f.session.Start(ctx,
		func(p scan.Payload) { f.checkIn(ctx, p) },
		func(err error) { f.settle(noCameraOutcome(err.Error())) },
	)
}

// Stop releases the camera and silences the flow. A check-in already in flight is left to
// finish in the background; its outcome is kept but not reported.
func (f *Flow) Stop() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.session.Stop()
}

// Done is closed once the flow has nothing left running.
func (f *Flow) Done() <-chan struct{} {
	return f.session.Done()
}

func (f *Flow) Outcome() (Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcome == nil {
		return Outcome{}, false
	}
	return *f.outcome, true
}

func (f *Flow) Snapshot() Snapshot {
	state := f.session.State()

	f.mu.Lock()
	defer f.mu.Unlock()
	snap := Snapshot{State: state}
	if f.payload != nil {
		p := *f.payload
		snap.Payload = &p
	}
	if f.attempt != nil {
		a := *f.attempt
		snap.Attempt = &a
	}
	if f.outcome != nil {
		o := *f.outcome
		snap.Outcome = &o
	}
	return snap
}

func (f *Flow) checkIn(ctx context.Context, p scan.Payload) {
	f.mu.Lock()
	f.payload = &p
	f.mu.Unlock()

	a := f.protocol.Run(ctx, p.ExtractedID, func(a Attempt) {
		f.mu.Lock()
		f.attempt = &a
		f.mu.Unlock()
	})
	if a.Status == StatusSucceeded {
		f.settle(successOutcome(a.Result))
		return
	}
	f.settle(errorOutcome(a.FailureReason))
}

func (f *Flow) settle(o Outcome) {
	f.mu.Lock()
	if f.outcome != nil {
		f.mu.Unlock()
		return
	}
	f.outcome = &o
	closed, cb := f.closed, f.onOutcome
	f.mu.Unlock()

	if closed {
		f.logger.Debug("checkin: flow stopped, outcome not reported", map[string]interface{}{"outcome": o.Kind})
		return
	}
	if cb != nil {
		cb(o)
	}
}
