package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-market-insight/pkg/common"
	"golang-market-insight/pkg/logger"
)

type funcTask struct {
	name     string
	exec     func(ctx context.Context, attempt int) error
	attempts atomic.Int32
	failures chan error
}

func newFuncTask(name string, exec func(ctx context.Context, attempt int) error) *funcTask {
	return &funcTask{name: name, exec: exec, failures: make(chan error, 1)}
}

func (t *funcTask) Name() string { return t.name }

func (t *funcTask) Execute(ctx context.Context, attempt int) error {
	t.attempts.Add(1)
	return t.exec(ctx, attempt)
}

func (t *funcTask) OnFailure(_ context.Context, err error) {
	t.failures <- err
}

func testConfig() Config {
	return Config{
		Workers:       2,
		QueueSize:     4,
		MaxRetries:    3,
		BackoffBase:   time.Millisecond,
		BackoffFactor: 2,
		BackoffMax:    5 * time.Millisecond,
	}
}

func startPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	pool := NewPool(cfg, logger.NewNop(), nil)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := startPool(t, testConfig())

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		task := newFuncTask(fmt.Sprintf("task-%d", i), func(ctx context.Context, attempt int) error {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		require.NoError(t, pool.Submit(context.Background(), task))
	}

	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestPool_SubmitBlocksWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	pool := startPool(t, cfg)

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := newFuncTask("blocker", func(ctx context.Context, attempt int) error {
		close(started)
		<-release
		return nil
	})
	noop := func(ctx context.Context, attempt int) error { return nil }

	require.NoError(t, pool.Submit(context.Background(), blocker))
	<-started
	require.NoError(t, pool.Submit(context.Background(), newFuncTask("queued", noop)))

	submitted := make(chan error, 1)
	go func() {
		submitted <- pool.Submit(context.Background(), newFuncTask("waiting", noop))
	}()

	select {
	case <-submitted:
		t.Fatal("submit returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-submitted:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("submit did not unblock after the queue drained")
	}
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	pool := startPool(t, cfg)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), newFuncTask("blocker", func(ctx context.Context, attempt int) error {
		close(started)
		<-release
		return nil
	})))
	<-started
	require.NoError(t, pool.Submit(context.Background(), newFuncTask("queued", func(ctx context.Context, attempt int) error { return nil })))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, newFuncTask("late", func(ctx context.Context, attempt int) error { return nil }))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_RetriesTransientFailures(t *testing.T) {
	pool := startPool(t, testConfig())

	done := make(chan struct{})
	task := newFuncTask("flaky", func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return fmt.Errorf("fetch: %w", common.ErrSourceUnavailable)
		}
		close(done)
		return nil
	})
	require.NoError(t, pool.Submit(context.Background(), task))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never succeeded")
	}
	assert.Equal(t, int32(3), task.attempts.Load())
	assert.Empty(t, task.failures)
}

func TestPool_GivesUpAfterMaxRetries(t *testing.T) {
	pool := startPool(t, testConfig())

	task := newFuncTask("down", func(ctx context.Context, attempt int) error {
		return common.ErrProviderRateLimited
	})
	require.NoError(t, pool.Submit(context.Background(), task))

	select {
	case err := <-task.failures:
		assert.True(t, common.IsTransient(err))
	case <-time.After(time.Second):
		t.Fatal("failure was never recorded")
	}
	assert.Equal(t, int32(4), task.attempts.Load())
}

func TestPool_DoesNotRetryPermanentFailures(t *testing.T) {
	pool := startPool(t, testConfig())

	task := newFuncTask("invalid", func(ctx context.Context, attempt int) error {
		return fmt.Errorf("fetch XXX: %w", common.ErrInvalidSymbol)
	})
	require.NoError(t, pool.Submit(context.Background(), task))

	select {
	case err := <-task.failures:
		assert.ErrorIs(t, err, common.ErrInvalidSymbol)
	case <-time.After(time.Second):
		t.Fatal("failure was never recorded")
	}
	assert.Equal(t, int32(1), task.attempts.Load())
}

func TestPool_IsolatesPanics(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	pool := startPool(t, cfg)

	boom := newFuncTask("boom", func(ctx context.Context, attempt int) error {
		panic("unexpected nil")
	})
	done := make(chan struct{})
	next := newFuncTask("next", func(ctx context.Context, attempt int) error {
		close(done)
		return nil
	})

	require.NoError(t, pool.Submit(context.Background(), boom))
	require.NoError(t, pool.Submit(context.Background(), next))

	select {
	case err := <-boom.failures:
		assert.Contains(t, err.Error(), "unexpected nil")
		assert.False(t, common.IsTransient(err))
	case <-time.After(time.Second):
		t.Fatal("panic was not recorded as a failure")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}
	assert.Equal(t, int32(1), boom.attempts.Load())
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(testConfig(), logger.NewNop(), nil)
	pool.Start(context.Background())
	pool.Stop()

	err := pool.Submit(context.Background(), newFuncTask("late", func(ctx context.Context, attempt int) error { return nil }))
	assert.True(t, errors.Is(err, common.ErrPoolClosed))
}

func TestBackoff(t *testing.T) {
	cfg := Config{BackoffBase: time.Second, BackoffFactor: 2, BackoffMax: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 5, want: 16 * time.Second},
		{attempt: 6, want: 30 * time.Second},
		{attempt: 10, want: 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(cfg, tt.attempt), "attempt %d", tt.attempt)
	}
}
