package camera

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Defaults for the capture loop.
const (
	DefaultBackoff     = 100 * time.Millisecond
	DefaultStopGrace   = 2 * time.Second
	DefaultReopenAfter = 20
)

// Publisher receives every captured frame.
type Publisher interface {
	Publish(f model.Frame)
}

// FrameHook runs on the capture goroutine after a frame was published. It
// must not modify the frame.
type FrameHook func(ctx context.Context, f model.Frame)

// Stats describes capture activity.
type Stats struct {
	Running  bool   `json:"running"`
	Captured uint64 `json:"captured"`
	Failures uint64 `json:"failures"`
	Reopens  uint64 `json:"reopens"`
}

// Option configures a Session.
type Option func(*Session)

// WithBackoff sets the pause after a failed open or read.
func WithBackoff(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// WithStopGrace bounds how long Stop waits for the loop to exit.
func WithStopGrace(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.stopGrace = d
		}
	}
}

// WithReopenAfter closes and reopens the device after n consecutive read
// failures; 0 disables reopening.
func WithReopenAfter(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.reopenAfter = n
		}
	}
}

// WithFrameHook installs a hook called for every published frame.
func WithFrameHook(h FrameHook) Option {
	return func(s *Session) { s.hook = h }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// Session owns a capture device and the goroutine that feeds a Publisher.
type Session struct {
	device      Device
	out         Publisher
	backoff     time.Duration
	stopGrace   time.Duration
	reopenAfter int
	hook        FrameHook
	log         logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	guard  *deviceGuard

	running  atomic.Bool
	captured atomic.Uint64
	failures atomic.Uint64
	reopens  atomic.Uint64
}

// NewSession creates a stopped session.
func NewSession(device Device, out Publisher, opts ...Option) (*Session, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if out == nil {
		return nil, ErrNilPublisher
	}
	s := &Session{
		device:      device,
		out:         out,
		backoff:     DefaultBackoff,
		stopGrace:   DefaultStopGrace,
		reopenAfter: DefaultReopenAfter,
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the capture loop. The device is opened inside the loop, so
// an unavailable camera is retried rather than reported here.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.guard = &deviceGuard{dev: s.device}
	s.running.Store(true)
	metrics.UpdateCameraRunning(true)

	go s.loop(loopCtx, s.guard, s.done)
	s.log.Info(ctx, "camera session started")
	return nil
}

// Stop signals the loop, waits up to the grace period, and releases the
// device whether or not the loop exited. Safe to call repeatedly.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done, guard := s.cancel, s.done, s.guard
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	timer := time.NewTimer(s.stopGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.log.Error(context.Background(), "capture loop did not exit within grace period; releasing device",
			logger.Duration("grace", s.stopGrace))
		metrics.RecordErrorByComponent("camera", "stop_timeout")
	}
	guard.shutdown(s.log)
	s.running.Store(false)
	metrics.UpdateCameraRunning(false)
	s.log.Info(context.Background(), "camera session stopped")
}

// Running reports whether the capture loop is active.
func (s *Session) Running() bool { return s.running.Load() }

// Stats returns capture counters.
func (s *Session) Stats() Stats {
	return Stats{
		Running:  s.running.Load(),
		Captured: s.captured.Load(),
		Failures: s.failures.Load(),
		Reopens:  s.reopens.Load(),
	}
}

func (s *Session) loop(ctx context.Context, guard *deviceGuard, done chan struct{}) {
	defer close(done)
	defer guard.shutdown(s.log)
	defer s.running.Store(false)

	var seq uint64
	consecutive := 0
	for ctx.Err() == nil {
		if !guard.isOpen() {
			if err := guard.open(ctx, s.log); err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrSessionStopped) {
					return
				}
				s.fail(ctx, "Warning: Could not open webcam.", err)
				s.sleep(ctx)
				continue
			}
		}

		f, err := s.device.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutive++
			s.fail(ctx, "Warning: Could not read a frame from the webcam.", err)
			if s.reopenAfter > 0 && consecutive >= s.reopenAfter {
				guard.release(s.log)
				consecutive = 0
				s.reopens.Add(1)
				metrics.RecordCameraReopen()
			}
			s.sleep(ctx)
			continue
		}
		consecutive = 0

		seq++
		if f.Seq == 0 {
			f.Seq = seq
		}
		if f.CapturedAt.IsZero() {
			f.CapturedAt = time.Now()
		}
		s.out.Publish(f)
		s.captured.Add(1)
		metrics.RecordFrameCaptured()

		if s.hook != nil {
			s.hook(ctx, f)
		}
	}
}

func (s *Session) fail(ctx context.Context, msg string, err error) {
	s.failures.Add(1)
	metrics.RecordFrameReadError()
	s.log.Warn(ctx, msg, logger.Error(err))
}

func (s *Session) sleep(ctx context.Context) {
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// deviceGuard serialises open and close so the device is released exactly
// once per successful open, from whichever goroutine gets there first. Open
// itself runs outside the lock; a device that finishes opening after
// shutdown is closed straight away.
type deviceGuard struct {
	mu      sync.Mutex
	dev     Device
	opened  bool
	stopped bool
}

func (g *deviceGuard) open(ctx context.Context, log logger.Logger) error {
	g.mu.Lock()
	if g.opened {
		g.mu.Unlock()
		return nil
	}
	if g.stopped {
		g.mu.Unlock()
		return ErrSessionStopped
	}
	g.mu.Unlock()

	if err := g.dev.Open(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		if err := g.dev.Close(); err != nil {
			log.Warn(context.Background(), "camera close failed", logger.Error(err))
		}
		return ErrSessionStopped
	}
	g.opened = true
	return nil
}

func (g *deviceGuard) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

// release closes an open device; the guard may open it again.
func (g *deviceGuard) release(log logger.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked(log)
}

// shutdown closes an open device and refuses any later open.
func (g *deviceGuard) shutdown(log logger.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	g.closeLocked(log)
}

func (g *deviceGuard) closeLocked(log logger.Logger) {
	if !g.opened {
		return
	}
	g.opened = false
	if err := g.dev.Close(); err != nil {
		log.Warn(context.Background(), "camera close failed", logger.Error(err))
	}
}
