// Package worker runs pipeline tasks on a fixed number of goroutines fed by a
// bounded queue.
package worker

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
	"golang-market-insight/pkg/metrics"
)

// Task is a unit of work. Execute is called once per attempt, starting at 1.
// OnFailure is called exactly once when the pool gives up on the task.
type Task interface {
	Name() string
	Execute(ctx context.Context, attempt int) error
	OnFailure(ctx context.Context, err error)
}

// Config holds pool sizing and retry policy.
type Config struct {
	Workers       int
	QueueSize     int
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration
}

type Pool struct {
	cfg      Config
	logger   *logger.Logger
	recorder *metrics.Recorder

	tasks    chan Task
	quit     chan struct{}
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPool(cfg Config, log *logger.Logger, recorder *metrics.Recorder) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	return &Pool{
		cfg:      cfg,
		logger:   log,
		recorder: recorder,
		tasks:    make(chan Task, cfg.QueueSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the workers. They run until Stop drains the queue.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("Worker pool started",
		logger.IntField("workers", p.cfg.Workers),
		logger.IntField("queue_size", p.cfg.QueueSize))
}

// Submit enqueues a task, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return common.ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.recorder.SetQueueDepth(len(p.tasks))
		return nil
	case <-p.quit:
		return common.ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new tasks, lets the workers finish what is queued and waits for them.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)

		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		p.wg.Wait()
		p.logger.Info("Worker pool stopped")
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.recorder.SetQueueDepth(len(p.tasks))
		p.run(ctx, id, task)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	var err error
	for attempt := 1; ; attempt++ {
		err = p.execute(ctx, task, attempt)
		if err == nil {
			return
		}
		if !common.IsTransient(err) || attempt > p.cfg.MaxRetries {
			break
		}

		delay := Backoff(p.cfg, attempt)
		p.logger.Warn("Transient failure, retrying task",
			logger.StringField("task", task.Name()),
			logger.IntField("worker", id),
			logger.IntField("attempt", attempt),
			logger.Field("backoff", delay.String()),
			logger.ErrorField(err))
		p.recorder.RecordRetry()

		if waitErr := sleep(ctx, delay); waitErr != nil {
			err = fmt.Errorf("%w: retry aborted: %v", common.ErrCancelled, err)
			break
		}
	}

	p.logger.Error("Task failed",
		logger.StringField("task", task.Name()),
		logger.IntField("worker", id),
		logger.ErrorField(err))
	p.fail(ctx, task, err)
}

// execute runs one attempt and turns a panic into a non-transient error.
func (p *Pool) execute(ctx context.Context, task Task, attempt int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.recorder.RecordPanic()
			p.logger.Error("Recovered panic in task",
				logger.StringField("task", task.Name()),
				logger.Field("panic", r),
				logger.StringField("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Execute(ctx, attempt)
}

func (p *Pool) fail(ctx context.Context, task Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.recorder.RecordPanic()
			p.logger.Error("Recovered panic in task failure handler",
				logger.StringField("task", task.Name()),
				logger.Field("panic", r))
		}
	}()
	task.OnFailure(context.WithoutCancel(ctx), err)
}

// Backoff returns the delay before retry number attempt (1-based):
// base * factor^(attempt-1), capped at BackoffMax.
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(cfg.BackoffBase) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if cfg.BackoffMax > 0 && d > float64(cfg.BackoffMax) {
		return cfg.BackoffMax
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
