// Package service runs a posture monitoring session and answers the report
// and ranking queries behind the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/posture/internal/adapters/camera"
	"github.com/okian/posture/internal/adapters/framebuf"
	eventqueue "github.com/okian/posture/internal/adapters/mq/queue"
	workerpool "github.com/okian/posture/internal/adapters/mq/worker"
	"github.com/okian/posture/internal/adapters/overlay"
	"github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/adapters/sink"
	"github.com/okian/posture/internal/config"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/posture"
	"github.com/okian/posture/internal/domain/ranking"
	"github.com/okian/posture/internal/domain/tracker"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

const defaultShutdownTimeout = 5 * time.Second

// Service owns one monitoring session: capture, evaluation on a fixed
// cadence, asynchronous persistence and event fan-out.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	now    func() time.Time
	user   string

	// Injected or built on Start.
	store      repository.Store
	device     camera.Device
	detector   posture.Detector
	extraSinks []sink.Sink

	// Session components.
	sessionID string
	frames    *framebuf.Buffer
	previews  *sink.PreviewSink
	out       sink.Fanout
	evaluator *posture.Evaluator
	engine    *ranking.Engine
	tracker   *tracker.Tracker
	cadence   *tracker.Cadence
	camera    *camera.Session
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	closers   []io.Closer

	cancel      context.CancelFunc
	cadenceDone chan struct{}

	started     bool
	stopped     bool
	storeClosed bool
	final       *finalReport
}

type finalReport struct {
	report ranking.Report
	err    error
}

// New constructs a Service. Nothing is opened until Start or a query needs
// the store.
func New(opts ...Option) *Service {
	s := &Service{
		logger: logger.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.New(context.Background())
	}
	if s.user == "" {
		s.user = s.cfg.User
	}
	mode, err := ranking.ParseRatioMode(s.cfg.Ranking.RatioMode)
	if err != nil {
		mode = ranking.RatioByDuration
	}
	s.engine = ranking.NewEngine(ranking.WithRatioMode(mode))
	return s
}

// User returns the monitored user.
func (s *Service) User() string { return s.user }

// SessionID returns the id of the running or last session, empty before Start.
func (s *Service) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Start opens the store, begins capture and evaluation, and starts the
// transition writers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopped:
		return ErrStopped
	case s.started:
		return ErrAlreadyStarted
	case s.user == "":
		return ErrNoUser
	}

	store, err := s.openStoreLocked(ctx)
	if err != nil {
		return err
	}
	if s.cfg.UniqueUsernames {
		exists, err := store.HasUser(ctx, s.user)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, s.user)
		}
	}

	if err := s.buildSessionLocked(ctx); err != nil {
		s.closeAuxLocked(ctx)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cadenceDone = make(chan struct{})

	if err := s.camera.Start(runCtx); err != nil {
		cancel()
		s.closeAuxLocked(ctx)
		return fmt.Errorf("start camera: %w", err)
	}
	s.pool.Start(runCtx)
	go func() {
		defer close(s.cadenceDone)
		s.cadence.Run(runCtx)
	}()

	s.started = true
	metrics.UpdateCurrentStatus(metrics.StatusGaugeUninitialized)
	s.logger.Info(ctx, "monitoring session started",
		logger.String("user", s.user),
		logger.String("session_id", s.sessionID),
		logger.Duration("cadence", s.cadence.Interval()),
		logger.String("no_detection_status", s.evaluator.NoDetectionStatus().Key()),
	)
	if s.evaluator.NoDetectionStatus() == model.StatusGood {
		s.logger.Warn(ctx, "frames without a detected person are counted as good posture")
	}
	return nil
}

func (s *Service) buildSessionLocked(ctx context.Context) error {
	classifier, err := s.buildClassifier()
	if err != nil {
		return err
	}
	noDetection, err := s.noDetectionStatus()
	if err != nil {
		return err
	}
	if s.detector == nil {
		if s.detector, err = s.buildDetector(); err != nil {
			return err
		}
	}
	if s.device == nil {
		if s.device, err = s.buildDevice(); err != nil {
			return err
		}
	}

	s.evaluator, err = posture.NewEvaluator(s.detector, classifier,
		posture.WithNoDetectionStatus(noDetection),
		posture.WithDetectTimeout(s.cfg.Oracle.Timeout),
		posture.WithEvaluatorLogger(s.logger.Named("evaluator")),
		posture.WithClock(s.now),
	)
	if err != nil {
		return err
	}

	if s.cfg.Preview.Enabled {
		s.previews = sink.NewPreviewSink(framebuf.New(framebuf.WithoutMetrics()))
	}
	s.out = s.buildSinks(ctx)

	s.sessionID = uuid.NewString()
	s.tracker = tracker.New(s.user, s.sessionID)
	s.cadence = tracker.NewCadence(s.cfg.Cadence, s.tick, tracker.WithCadenceClock(s.now))
	s.frames = framebuf.New()

	camOpts := []camera.Option{
		camera.WithBackoff(s.cfg.Camera.Backoff),
		camera.WithStopGrace(s.cfg.Camera.StopGrace),
		camera.WithReopenAfter(s.cfg.Camera.ReopenAfter),
		camera.WithLogger(s.logger.Named("camera")),
	}
	if s.previews != nil {
		stage, err := overlay.NewStage(s.detector, classifier, s.out,
			overlay.WithInterval(s.cfg.Preview.Interval),
			overlay.WithWidth(s.cfg.Preview.Width),
			overlay.WithLogger(s.logger.Named("preview")),
		)
		if err != nil {
			return err
		}
		camOpts = append(camOpts, camera.WithFrameHook(stage.Hook))
	}
	s.camera, err = camera.NewSession(s.device, s.frames, camOpts...)
	if err != nil {
		return err
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.Queue.Size))
	s.pool = workerpool.NewPool(s.cfg.Worker.Count, s.queue, s.store,
		workerpool.WithLogger(s.logger.Named("writer")),
		workerpool.WithOnError(s.onWriteError),
		workerpool.WithOnWritten(s.onWritten),
	)
	return nil
}

// tick is one cadence evaluation: latest frame, classification, tracker.
func (s *Service) tick(ctx context.Context, now time.Time) {
	frame, ok := s.frames.Latest()
	sample := s.evaluator.Evaluate(ctx, frame, ok)

	res := s.tracker.Observe(sample.Status, now)
	if res.Record != nil {
		s.persist(ctx, *res.Record)
	}
	snap := s.tracker.Snapshot()
	metrics.UpdateSessionSeconds(model.StatusGood.Key(), snap.GoodTime.Seconds())
	metrics.UpdateSessionSeconds(model.StatusSlouch.Key(), snap.SlouchTime.Seconds())

	if !res.Changed {
		return
	}
	metrics.RecordTransition(res.From.Key(), res.To.Key())
	metrics.UpdateCurrentStatus(statusGauge(res.To))
	s.out.StatusChanged(model.StatusEvent{
		User:    s.user,
		Status:  res.To,
		Color:   res.To.Color(),
		Message: "Status changed to: " + res.To.String(),
		At:      now,
	})
}

// persist hands a closed interval to the writers without blocking.
func (s *Service) persist(ctx context.Context, rec model.TransitionRecord) {
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error(ctx, "transition dropped",
			logger.Error(err),
			logger.String("status", rec.Status.String()),
			logger.Duration("duration", rec.Duration),
		)
		s.message("error", fmt.Sprintf("DB insert error: %v", err))
	}
}

func (s *Service) onWriteError(_ context.Context, _ model.TransitionRecord, err error) {
	s.message("error", fmt.Sprintf("DB insert error: %v", err))
}

func (s *Service) onWritten(context.Context, model.TransitionRecord) {
	s.message("info", "Record inserted into database.")
}

func (s *Service) message(level, msg string) {
	out := s.sink()
	out.Message(model.LogEvent{Level: level, Message: msg, At: s.now()})
}

// sink returns the session fan-out, or only the injected sinks before Start.
func (s *Service) sink() sink.Sink {
	if s.out != nil {
		return s.out
	}
	return sink.NewFanout(s.extraSinks...)
}

// TriggerTick runs one evaluation immediately on the calling goroutine. It
// returns false when the session is not running or a tick is in flight.
func (s *Service) TriggerTick(ctx context.Context) bool {
	s.mu.RLock()
	running := s.started && !s.stopped
	cadence := s.cadence
	s.mu.RUnlock()
	if !running {
		return false
	}
	return cadence.Trigger(ctx)
}

// Stop ends the session: evaluation stops, the open interval is flushed,
// capture stops, writers drain the queue and the store is closed. It is safe
// to call more than once and on a service that never started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	ctx := context.Background()

	if s.started {
		s.logger.Info(ctx, "stopping monitoring session", logger.String("session_id", s.sessionID))
		s.cancel()
		<-s.cadenceDone

		if rec, ok := s.tracker.Flush(s.now()); ok {
			s.persist(ctx, rec)
		}
		s.camera.Stop()

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		drainCtx, cancel := context.WithTimeout(ctx, timeout)
		if err := s.pool.Shutdown(drainCtx); err != nil {
			s.logger.Error(ctx, "transition writers did not drain", logger.Error(err))
		}
		cancel()
		metrics.UpdateCurrentStatus(metrics.StatusGaugeUninitialized)

		report, err := s.reportLocked(ctx)
		s.final = &finalReport{report: report, err: err}
	}

	s.closeAuxLocked(ctx)
	if s.store != nil && !s.storeClosed {
		if err := s.store.Close(); err != nil && !errors.Is(err, repository.ErrClosed) {
			s.logger.Error(ctx, "closing store", logger.Error(err))
		}
	}
	s.storeClosed = true
	if s.started {
		s.logger.Info(ctx, "monitoring session stopped",
			logger.Any("written", s.pool.Written()),
			logger.Any("failed", s.pool.Failed()),
		)
	}
}

// closeAuxLocked closes the MQTT connection and oracle helper.
func (s *Service) closeAuxLocked(ctx context.Context) {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn(ctx, "closing component", logger.Error(err))
		}
	}
	s.closers = nil
}

func statusGauge(st model.PostureStatus) int {
	switch st {
	case model.StatusGood:
		return metrics.StatusGaugeGood
	case model.StatusSlouch:
		return metrics.StatusGaugeSlouch
	default:
		return metrics.StatusGaugeUninitialized
	}
}
