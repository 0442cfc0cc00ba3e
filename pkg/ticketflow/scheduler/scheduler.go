// Package scheduler runs the host poll loop: it leases work item
// batches, fans them out to a bounded worker pool, keeps leases renewed
// while items process, and enforces global and per-tenant concurrency
// budgets. Multiple scheduler instances can safely share one queue; the
// lease protocol keeps them from processing the same item.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/observability"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/queue"
)

// Processor handles one leased work item. A nil return acknowledges the
// item; an error releases it for another delivery.
type Processor interface {
	Process(ctx context.Context, item *queue.WorkItem) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, item *queue.WorkItem) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, item *queue.WorkItem) error {
	return f(ctx, item)
}

// Config tunes the poll loop.
type Config struct {
	// Owner identifies this instance in lease records.
	Owner string

	// PollInterval is how often the loop checks for eligible items.
	PollInterval time.Duration

	// BatchSize bounds how many items one poll leases.
	BatchSize int

	// LeaseDuration is the initial lease length; items crash-recover
	// after it expires.
	LeaseDuration time.Duration

	// RenewInterval is how often in-flight items have their lease
	// extended. Must be well under LeaseDuration.
	RenewInterval time.Duration

	// MaxConcurrent bounds in-flight items across all tenants.
	MaxConcurrent int

	// TenantBudgets bounds in-flight items per tenant. Tenants at their
	// budget are excluded from leasing; zero or absent means the global
	// bound alone applies.
	TenantBudgets map[string]int

	// ShutdownGrace is how long Run waits for in-flight items after its
	// context is cancelled before abandoning them to lease expiry.
	ShutdownGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.Owner == "" {
		c.Owner = "scheduler"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 8
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 2 * time.Minute
	}
	if c.RenewInterval <= 0 {
		c.RenewInterval = c.LeaseDuration / 4
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.ShutdownGrace < 0 {
		c.ShutdownGrace = 0
	}
}

// Scheduler is the poll loop host.
type Scheduler struct {
	q       queue.Queue
	proc    Processor
	cfg     Config
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu       sync.Mutex
	inflight map[string]int // per-tenant in-flight counts
	total    int
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a scheduler over the queue and processor.
func New(q queue.Queue, proc Processor, cfg Config, opts ...Option) *Scheduler {
	cfg.applyDefaults()
	s := &Scheduler{
		q:        q,
		proc:     proc,
		cfg:      cfg,
		metrics:  observability.NoopMetrics{},
		inflight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls until ctx is cancelled, then stops leasing and waits up to
// ShutdownGrace for in-flight items. Items that cannot finish in time
// are cancelled and released; if even the release fails, lease expiry
// hands them to the next instance.
func (s *Scheduler) Run(ctx context.Context) error {
	// Workers outlive the polling context so in-flight items can finish
	// during the grace window.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	var wg sync.WaitGroup
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.poll(workCtx, &wg)

		select {
		case <-ctx.Done():
			s.shutdown(cancelWork, &wg)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll leases one batch within current capacity and dispatches workers.
func (s *Scheduler) poll(ctx context.Context, wg *sync.WaitGroup) {
	capacity, excluded := s.capacity()
	if capacity <= 0 {
		return
	}
	if capacity > s.cfg.BatchSize {
		capacity = s.cfg.BatchSize
	}

	items, err := s.q.LeaseBatch(ctx, queue.LeaseOptions{
		Owner:          s.cfg.Owner,
		MaxItems:       capacity,
		LeaseDuration:  s.cfg.LeaseDuration,
		ExcludeTenants: excluded,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("lease batch failed", slog.String("error", err.Error()))
		}
		return
	}

	for _, item := range items {
		// LeaseBatch only excludes tenants already at budget, so one batch
		// can still carry more items for a tenant than its budget allows.
		// Put the overflow back; the next poll picks it up once the tenant
		// has capacity again.
		if !s.tryTrack(item.TenantID) {
			if err := s.q.Release(ctx, item.ID, s.cfg.Owner); err != nil && s.logger != nil {
				s.logger.Warn("release of over-budget item failed, lease will expire",
					slog.String("item_id", item.ID), slog.String("error", err.Error()))
			}
			continue
		}

		observability.LogItemLeased(s.logger, item.ID, item.TenantID, item.TicketID, string(item.Kind), item.Attempts)
		s.metrics.RecordLease(ctx, item.TenantID, 1)

		wg.Add(1)
		go func(item *queue.WorkItem) {
			defer wg.Done()
			defer s.track(item.TenantID, -1)
			s.work(ctx, item)
		}(item)
	}
}

// work processes one item with its lease kept alive.
func (s *Scheduler) work(ctx context.Context, item *queue.WorkItem) {
	elapsed := observability.TimedOperation()

	stopRenewal := s.keepLeased(ctx, item)
	err := s.proc.Process(ctx, item)
	stopRenewal()

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("work item processing failed, releasing",
				slog.String("item_id", item.ID),
				slog.String("ticket_id", item.TicketID),
				slog.String("error", err.Error()))
		}
		if relErr := s.q.Release(ctx, item.ID, s.cfg.Owner); relErr != nil && s.logger != nil {
			s.logger.Warn("release failed, lease will expire",
				slog.String("item_id", item.ID), slog.String("error", relErr.Error()))
		}
		observability.LogItemDone(s.logger, item.ID, false, elapsed())
		return
	}

	if ackErr := s.q.Acknowledge(ctx, item.ID, s.cfg.Owner); ackErr != nil && s.logger != nil {
		// The lease lapsed mid-processing; the item re-delivers and the
		// processor's idempotency absorbs the duplicate.
		s.logger.Warn("acknowledge failed, item may re-deliver",
			slog.String("item_id", item.ID), slog.String("error", ackErr.Error()))
	}
	observability.LogItemDone(s.logger, item.ID, true, elapsed())
}

// keepLeased renews the item's lease every RenewInterval until the
// returned stop function is called.
func (s *Scheduler) keepLeased(ctx context.Context, item *queue.WorkItem) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(s.cfg.RenewInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.q.RenewLease(ctx, item.ID, s.cfg.Owner, s.cfg.LeaseDuration); err != nil {
					if s.logger != nil {
						s.logger.Warn("lease renewal failed",
							slog.String("item_id", item.ID), slog.String("error", err.Error()))
					}
					return
				}
			}
		}
	}()
	return stop
}

// shutdown waits out the grace window, then cancels remaining work.
func (s *Scheduler) shutdown(cancelWork context.CancelFunc, wg *sync.WaitGroup) {
	if s.logger != nil {
		s.logger.Info("scheduler stopping", slog.Duration("grace", s.cfg.ShutdownGrace))
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(s.cfg.ShutdownGrace):
		// Abandon what remains; released or expired leases hand the
		// items to the next instance.
		cancelWork()
		<-finished
	}
}

// capacity returns remaining global capacity and the tenants currently
// at their budget.
func (s *Scheduler) capacity() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var excluded []string
	for tenant, budget := range s.cfg.TenantBudgets {
		if budget > 0 && s.inflight[tenant] >= budget {
			excluded = append(excluded, tenant)
		}
	}
	return s.cfg.MaxConcurrent - s.total, excluded
}

// tryTrack claims an in-flight slot for the tenant, refusing when the
// tenant is at its budget.
func (s *Scheduler) tryTrack(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if budget := s.cfg.TenantBudgets[tenantID]; budget > 0 && s.inflight[tenantID] >= budget {
		return false
	}
	s.inflight[tenantID]++
	s.total++
	return true
}

func (s *Scheduler) track(tenantID string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight[tenantID] += delta
	s.total += delta
}
