package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/queue"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/scheduler"
)

// recorder counts deliveries per item and optionally blocks or fails.
type recorder struct {
	mu         sync.Mutex
	deliveries map[string]int

	block    chan struct{}  // when set, Process waits on it
	failures map[string]int // remaining failures per item ID

	current atomic.Int32
	peak    atomic.Int32
}

func newRecorder() *recorder {
	return &recorder{deliveries: make(map[string]int), failures: make(map[string]int)}
}

func (r *recorder) Process(ctx context.Context, item *queue.WorkItem) error {
	cur := r.current.Add(1)
	defer r.current.Add(-1)
	for {
		peak := r.peak.Load()
		if cur <= peak || r.peak.CompareAndSwap(peak, cur) {
			break
		}
	}

	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[item.ID]++
	if r.failures[item.ID] > 0 {
		r.failures[item.ID]--
		return errors.New("transient processor failure")
	}
	return nil
}

func (r *recorder) delivered(itemID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliveries[itemID]
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.deliveries {
		n += c
	}
	return n
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startScheduler(t *testing.T, q queue.Queue, proc scheduler.Processor, cfg scheduler.Config) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = scheduler.New(q, proc, cfg).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
	return cancel
}

func testConfig() scheduler.Config {
	return scheduler.Config{
		Owner:         "test",
		PollInterval:  5 * time.Millisecond,
		BatchSize:     4,
		LeaseDuration: time.Minute,
		RenewInterval: 10 * time.Second,
		MaxConcurrent: 4,
		ShutdownGrace: time.Second,
	}
}

func TestProcessesAndAcknowledgesItems(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	ids := make([]string, 3)
	for i := range ids {
		item := queue.NewStart("acme", "T1", "refinement")
		ids[i] = item.ID
		require.NoError(t, q.Enqueue(ctx, item))
	}

	rec := newRecorder()
	startScheduler(t, q, rec, testConfig())

	waitFor(t, func() bool { return q.Len() == 0 }, "queue did not drain")
	for _, id := range ids {
		assert.Equal(t, 1, rec.delivered(id))
	}
}

func TestReleasesFailedItemsForRedelivery(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	item := queue.NewStart("acme", "T1", "refinement")
	require.NoError(t, q.Enqueue(ctx, item))

	rec := newRecorder()
	rec.failures[item.ID] = 1
	startScheduler(t, q, rec, testConfig())

	waitFor(t, func() bool { return q.Len() == 0 }, "queue did not drain")
	assert.Equal(t, 2, rec.delivered(item.ID))
}

func TestGlobalConcurrencyBound(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, q.Enqueue(ctx, queue.NewStart("acme", "T1", "refinement")))
	}

	rec := newRecorder()
	rec.block = make(chan struct{})

	cfg := testConfig()
	cfg.MaxConcurrent = 2
	cfg.BatchSize = 6
	startScheduler(t, q, rec, cfg)

	waitFor(t, func() bool { return rec.current.Load() == 2 }, "workers did not start")
	// Give the poll loop a chance to overshoot, then verify it never did.
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, int32(2), rec.peak.Load())

	close(rec.block)
	waitFor(t, func() bool { return q.Len() == 0 }, "queue did not drain")
	assert.Equal(t, 6, rec.total())
	assert.LessOrEqual(t, rec.peak.Load(), int32(2))
}

func TestTenantBudgetExcludesBusyTenant(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	acme1 := queue.NewStart("acme", "T1", "refinement")
	acme2 := queue.NewStart("acme", "T2", "refinement")
	globex := queue.NewStart("globex", "T3", "refinement")
	require.NoError(t, q.Enqueue(ctx, acme1))
	require.NoError(t, q.Enqueue(ctx, acme2))
	require.NoError(t, q.Enqueue(ctx, globex))

	rec := newRecorder()
	rec.block = make(chan struct{})

	cfg := testConfig()
	cfg.TenantBudgets = map[string]int{"acme": 1}
	startScheduler(t, q, rec, cfg)

	// One acme item and the globex item run; the second acme item stays
	// queued while its tenant is at budget.
	waitFor(t, func() bool { return rec.current.Load() == 2 }, "workers did not start")
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, int32(2), rec.current.Load())
	assert.Equal(t, int32(2), rec.peak.Load())

	close(rec.block)
	waitFor(t, func() bool { return q.Len() == 0 }, "queue did not drain")
	assert.Equal(t, 1, rec.delivered(acme1.ID))
	assert.Equal(t, 1, rec.delivered(acme2.ID))
	assert.Equal(t, 1, rec.delivered(globex.ID))
}

func TestTenantBudgetCapsSingleBatch(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(ctx, queue.NewStart("acme", "T1", "refinement")))
	}

	rec := newRecorder()
	rec.block = make(chan struct{})

	// All three items fit in one batch, but the budget admits one at a
	// time; the overflow is released back to the queue.
	cfg := testConfig()
	cfg.TenantBudgets = map[string]int{"acme": 1}
	startScheduler(t, q, rec, cfg)

	waitFor(t, func() bool { return rec.current.Load() == 1 }, "worker did not start")
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, int32(1), rec.current.Load())
	assert.Equal(t, int32(1), rec.peak.Load())

	close(rec.block)
	waitFor(t, func() bool { return q.Len() == 0 }, "queue did not drain")
	assert.Equal(t, 3, rec.total())
	assert.Equal(t, int32(1), rec.peak.Load())
}

func TestLeaseRenewalPreventsRedelivery(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	item := queue.NewStart("acme", "T1", "refinement")
	require.NoError(t, q.Enqueue(ctx, item))

	slow := scheduler.ProcessorFunc(func(ctx context.Context, _ *queue.WorkItem) error {
		select {
		case <-time.After(80 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	deliveries := atomic.Int32{}
	counting := scheduler.ProcessorFunc(func(ctx context.Context, it *queue.WorkItem) error {
		deliveries.Add(1)
		return slow.Process(ctx, it)
	})

	cfg := testConfig()
	cfg.LeaseDuration = 30 * time.Millisecond
	cfg.RenewInterval = 10 * time.Millisecond
	startScheduler(t, q, counting, cfg)

	waitFor(t, func() bool { return q.Len() == 0 }, "queue did not drain")
	assert.Equal(t, int32(1), deliveries.Load())
}

func TestShutdownWaitsForInflightItems(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	defer q.Close()

	item := queue.NewStart("acme", "T1", "refinement")
	require.NoError(t, q.Enqueue(ctx, item))

	started := make(chan struct{})
	var startedOnce sync.Once
	proc := scheduler.ProcessorFunc(func(ctx context.Context, _ *queue.WorkItem) error {
		startedOnce.Do(func() { close(started) })
		select {
		case <-time.After(40 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	cancel := startScheduler(t, q, proc, testConfig())
	<-started
	cancel()

	// The in-flight item finishes inside the grace window and is
	// acknowledged rather than abandoned.
	waitFor(t, func() bool { return q.Len() == 0 }, "in-flight item was not finished")
}
