// Package workerpool provides an ordered asynchronous task queue backed by
// a goroutine pool. Tasks submitted to a Queue execute strictly in submission
// order on a single worker, which makes the queue suitable for write paths
// that must preserve causal ordering without blocking the caller.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
)

// ErrQueueClosed is returned by Submit after Close has been called.
var ErrQueueClosed = errors.New("workerpool: queue is closed")

// Task is a unit of deferred work. The context passed to the task is not
// tied to the submitting caller; queued work outlives the request that
// produced it.
type Task func(ctx context.Context) error

// Config holds queue tuning parameters.
type Config struct {
	// QueueSize is the task backlog capacity. Submit blocks once the
	// backlog is full.
	QueueSize int `mapstructure:"queue_size"`

	// DrainTimeout bounds how long Close waits for the backlog to finish.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// DefaultConfig returns a config suitable for background persistence work.
func DefaultConfig() *Config {
	return &Config{
		QueueSize:    256,
		DrainTimeout: 10 * time.Second,
	}
}

// Statistics is a point-in-time snapshot of queue counters.
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64
	Pending   int
}

type namedTask struct {
	name string
	fn   Task
}

// Queue executes tasks one at a time in submission order.
type Queue struct {
	config *Config
	logger *logger.Logger

	pool  *ants.Pool
	tasks chan namedTask

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a queue and starts its worker.
func New(config *Config, log *logger.Logger) (*Queue, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultConfig().DrainTimeout
	}
	if log == nil {
		log = logger.L()
	}

	pool, err := ants.NewPool(1, ants.WithPanicHandler(func(r interface{}) {
		log.Error("queue worker panic", zap.Any("panic", r))
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		config: config,
		logger: log,
		pool:   pool,
		tasks:  make(chan namedTask, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := pool.Submit(q.drain); err != nil {
		cancel()
		pool.Release()
		return nil, fmt.Errorf("failed to start queue worker: %w", err)
	}

	return q, nil
}

// Submit enqueues fn for ordered execution. Tasks run in the exact order
// they were submitted. Submit blocks only when the backlog is full.
func (q *Queue) Submit(name string, fn Task) error {
	if fn == nil {
		return errors.New("workerpool: nil task")
	}
	select {
	case <-q.ctx.Done():
		return ErrQueueClosed
	default:
	}
	select {
	case q.tasks <- namedTask{name: name, fn: fn}:
		q.submitted.Add(1)
		return nil
	case <-q.ctx.Done():
		return ErrQueueClosed
	}
}

// Stats returns current queue counters.
func (q *Queue) Stats() Statistics {
	return Statistics{
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Pending:   len(q.tasks),
	}
}

// Close stops intake, waits up to DrainTimeout for queued tasks to finish,
// and releases the worker.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.cancel()
	})

	select {
	case <-q.done:
	case <-time.After(q.config.DrainTimeout):
		q.logger.Warn("queue drain timed out",
			zap.Int("pending", len(q.tasks)),
		)
	}

	q.pool.Release()
	return nil
}

// drain is the single long-running worker. It processes the backlog in FIFO
// order and, once closed, finishes whatever is already queued before exiting.
func (q *Queue) drain() {
	defer close(q.done)

	for {
		select {
		case t := <-q.tasks:
			q.run(t)
		case <-q.ctx.Done():
			for {
				select {
				case t := <-q.tasks:
					q.run(t)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) run(t namedTask) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.logger.Error("queued task panic",
				zap.String("task", t.name),
				zap.Any("panic", r),
			)
		}
	}()

	if err := t.fn(context.Background()); err != nil {
		q.failed.Add(1)
		q.logger.Error("queued task failed",
			zap.String("task", t.name),
			zap.Error(err),
		)
		return
	}
	q.completed.Add(1)
}
