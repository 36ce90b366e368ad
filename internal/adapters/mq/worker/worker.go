// Package worker drains the transition queue into the store.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/posture/internal/adapters/mq/queue"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWriteTimeout   = 2 * time.Second
	metricsUpdateInterval = 5 * time.Second
)

// Inserter persists one transition record.
type Inserter interface {
	Insert(ctx context.Context, rec model.TransitionRecord) error
}

// Queue defines how writers receive records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Record
}

// ErrorHandler is told about a record that could not be written.
type ErrorHandler func(ctx context.Context, rec model.TransitionRecord, err error)

// WrittenHandler is told about a record that was written.
type WrittenHandler func(ctx context.Context, rec model.TransitionRecord)

// Writer consumes records from the queue and inserts them one at a time.
type Writer struct {
	queue     Queue
	store     Inserter
	name      string
	timeout   time.Duration
	onError   ErrorHandler
	onWritten WrittenHandler
	logger    logger.Logger

	written atomic.Uint64
	failed  atomic.Uint64
	done    chan struct{}
}

// NewWriter creates a writer with configuration options.
func NewWriter(q Queue, store Inserter, opts ...Option) *Writer {
	w := &Writer{
		queue:   q,
		store:   store,
		name:    "writer",
		timeout: defaultWriteTimeout,
		logger:  logger.Discard(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run consumes records until the queue channel closes or ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	records := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			if err := w.write(ctx, rec); err != nil {
				w.logger.Error(ctx, "DB insert error", logger.Error(err), logger.String("user", rec.User))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *Writer) Done() <-chan struct{} { return w.done }

// Written returns the number of records stored.
func (w *Writer) Written() uint64 { return w.written.Load() }

// Failed returns the number of records that could not be stored.
func (w *Writer) Failed() uint64 { return w.failed.Load() }

func (w *Writer) write(ctx context.Context, rec model.TransitionRecord) error {
	wctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.store.Insert(wctx, rec); err != nil {
		w.failed.Add(1)
		metrics.RecordPersistenceError()
		metrics.RecordErrorByComponent("worker", "insert")
		if w.onError != nil {
			w.onError(ctx, rec, err)
		}
		return fmt.Errorf("insert %s record for %s: %w", rec.Status.Key(), rec.User, err)
	}
	w.written.Add(1)
	w.logger.Debug(ctx, "Record inserted into database.",
		logger.String("user", rec.User), logger.String("status", rec.Status.String()))
	if w.onWritten != nil {
		w.onWritten(ctx, rec)
	}
	return nil
}

// Pool manages the writers sharing one queue.
type Pool struct {
	writers []*Writer
	queue   Queue
	logger  logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewPool creates count writers (at least one) sharing the queue and store.
func NewPool(count int, q Queue, store Inserter, opts ...Option) *Pool {
	if count < 1 {
		count = 1
	}
	base := &Writer{logger: logger.Discard()}
	for _, opt := range opts {
		opt(base)
	}
	pool := &Pool{
		writers: make([]*Writer, count),
		queue:   q,
		logger:  base.logger.Named("writer-pool"),
		stopped: make(chan struct{}),
	}
	for i := 0; i < count; i++ {
		named := make([]Option, 0, len(opts)+1)
		named = append(named, opts...)
		named = append(named, WithName("writer-"+strconv.Itoa(i)))
		pool.writers[i] = NewWriter(q, store, named...)
	}
	return pool
}

// Start launches every writer. Writers keep running after ctx is cancelled
// so queued records can still be drained by Shutdown.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for _, w := range p.writers {
		go w.Run(runCtx)
	}
	go p.startMetricsUpdater(runCtx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	lener, ok := p.queue.(interface{ Len(context.Context) int })
	if !ok {
		return
	}
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopped:
			return
		case <-ticker.C:
			lener.Len(ctx)
		}
	}
}

// Written sums stored records across writers.
func (p *Pool) Written() uint64 {
	var n uint64
	for _, w := range p.writers {
		n += w.Written()
	}
	return n
}

// Failed sums failed records across writers.
func (p *Pool) Failed() uint64 {
	var n uint64
	for _, w := range p.writers {
		n += w.Failed()
	}
	return n
}

// Shutdown closes the queue and waits for the writers to drain it. When ctx
// expires first the writers are cancelled and remaining records are lost.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.isStopped() {
		p.mu.Unlock()
		return nil
	}
	close(p.stopped)
	cancel := p.cancel
	p.mu.Unlock()
	defer cancel()

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.writers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			p.logger.Warn(ctx, "writer drain timed out", logger.Int("writer_id", i))
			return fmt.Errorf("drain writers: %w", ctx.Err())
		}
	}
	return nil
}

func (p *Pool) isStopped() bool {
	select {
	case <-p.stopped:
		return true
	default:
		return false
	}
}
