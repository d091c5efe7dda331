package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/pavulla/kiosk/core"
)

const DefaultSampleInterval = 500 * time.Millisecond

var ErrSessionActive = errors.New("scan session already active")

type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateStopped
	StateFailed
)

var stateNames = [...]string{"idle", "requesting", "streaming", "stopped", "failed"}

func (st State) String() string {
	if int(st) < len(stateNames) {
		return stateNames[st]
	}
	return fmt.Sprintf("State(%d)", int(st))
}

func (st State) MarshalText() ([]byte, error) {
	return []byte(st.String()), nil
}

type Option func(*Session)

func WithSampleInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithConstraints(c Constraints) Option {
	return func(s *Session) { s.constraints = c }
}

func WithLogger(logger core.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// run holds what one successful Start owns.
type run struct {
	stream  Stream
	cancel  context.CancelFunc
	done    chan struct{} // closed once the sampler has exited
	release sync.Once
}

// Session owns a camera stream and samples it until a frame decodes to a payload carrying an ID.
// A Session is reusable: Start may be called again once it is Stopped or Failed and Done is closed.
type Session struct {
	provider    StreamProvider
	decoder     Decoder
	interval    time.Duration
	constraints Constraints
	logger      core.Logger

	mu    sync.Mutex
	state State
	err   error
	cur   *run
}

func NewSession(provider StreamProvider, decoder Decoder, opts ...Option) *Session {
	s := &Session{
		provider:    provider,
		decoder:     decoder,
		interval:    DefaultSampleInterval,
		constraints: DefaultConstraints,
		logger:      discardLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorDetail is the acquisition error; only set while Failed.
func (s *Session) ErrorDetail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the latest run is over: acquisition failed (after onFatalError) or was
// abandoned, or the sampler returned (after onPayload, when a payload was found). It is closed before the first Start.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return closedChan
	}
	return s.cur.done
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Start acquires a stream and starts sampling it.
// It blocks while the stream is requested. It returns ErrSessionActive until the previous run
// is Done, so at most one stream is requested or held at a time. When acquisition fails the session is Failed and
// onFatalError is called once; otherwise onPayload is called at most once, from the sampling
// goroutine, after the stream has been released.
func (s *Session) Start(ctx context.Context, onPayload func(Payload), onFatalError func(error)) error {
	s.mu.Lock()
	if s.state == StateRequesting || s.state == StateStreaming || s.pending() {
		s.mu.Unlock()
		return ErrSessionActive
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.cur = r
	s.state = StateRequesting
	s.err = nil
	s.mu.Unlock()

	stream, err := s.provider.RequestStream(ctx, s.constraints)

	s.mu.Lock()
	if s.cur != r || s.state != StateRequesting {
		// stopped while acquiring
		s.mu.Unlock()
		cancel()
		close(r.done)
		if err == nil && stream != nil {
			s.provider.ReleaseStream(stream)
		}
		return nil
	}
	if err == nil && stream == nil {
		err = ErrNoCamera
	}
	if err != nil {
		s.state = StateFailed
		s.err = err
		s.mu.Unlock()
		cancel()
		s.logger.Warn("scan: camera acquisition failed", err)
		if onFatalError != nil {
			onFatalError(err)
		}
		close(r.done)
		return nil
	}
	r.stream = stream
	s.state = StateStreaming
	s.mu.Unlock()

	w, h := stream.Size()
	s.logger.Debug(fmt.Sprintf("scan: streaming %dx%d every %v", w, h, s.interval))
	go s.sample(ctx, r, onPayload)
	return nil
}

// Stop ends the session. It is idempotent and safe to call at any time, including from callbacks.
// When the session was streaming, Stop returns once the stream has been released.
func (s *Session) Stop() {
	s.mu.Lock()
	prev := s.state
	r := s.cur
	s.state = StateStopped
	s.err = nil
	s.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	if prev == StateStreaming {
		<-r.done
	}
}

func (s *Session) sample(ctx context.Context, r *run, onPayload func(Payload)) {
	ticker := time.NewTicker(s.interval)
	defer close(r.done)
	defer s.release(r)
	defer ticker.Stop()

	var frame *image.RGBA
	for {
		select {
		case <-ctx.Done():
			s.finish(r) // caller's context ended: same as Stop
			return
		case <-ticker.C:
		}
		if !s.isCurrent(r) {
			return
		}

		// off-screen buffer sized to the stream's native dimensions
		w, h := r.stream.Size()
		if w <= 0 || h <= 0 {
			continue
		}
		if frame == nil || frame.Rect.Dx() != w || frame.Rect.Dy() != h {
			frame = image.NewRGBA(image.Rect(0, 0, w, h))
		}
		if err := r.stream.CaptureInto(ctx, frame); err != nil {
			if !errors.Is(err, ErrFrameNotReady) && ctx.Err() == nil {
				s.logger.Debug("scan: capture failed", err)
			}
			continue
		}
		if !s.isCurrent(r) {
			return
		}

		payload, ok := s.decoder.Decode(frame.Pix, w, h)
		if !ok {
			continue
		}
		if !payload.HasID() {
			s.logger.Debug(fmt.Sprintf("scan: ignoring payload without id: %q", payload.RawText))
			continue
		}
		if !s.finish(r) {
			return
		}
		ticker.Stop()
		s.release(r)
		if onPayload != nil {
			onPayload(payload)
		}
		return
	}
}

// pending reports whether the latest run still owns a stream request or a sampler,
// e.g. a request abandoned by Stop that the camera has not answered yet; s.mu must be held.
func (s *Session) pending() bool {
	if s.cur == nil {
		return false
	}
	select {
	case <-s.cur.done:
		return false
	default:
		return true
	}
}

func (s *Session) isCurrent(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur == r && s.state == StateStreaming
}

// finish moves a streaming run to Stopped; false when Stop got there first.
func (s *Session) finish(r *run) bool {
	s.mu.Lock()
	if s.cur != r || s.state != StateStreaming {
		s.mu.Unlock()
		return false
	}
	s.state = StateStopped
	s.mu.Unlock()
	r.cancel()
	return true
}

func (s *Session) release(r *run) {
	r.release.Do(func() {
		s.provider.ReleaseStream(r.stream)
	})
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}
