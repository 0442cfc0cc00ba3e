// Package orchestrator maps work items to graph executions: it creates
// or loads checkpoints, runs or resumes the right graph, and turns each
// outcome into ticket stage updates, follow-up work items, bounded
// retries, or terminal failure.
//
// All cross-process state lives in the checkpoint store and the queue;
// any orchestrator instance can process any ticket's work items.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/checkpoint"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/llm"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/observability"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/queue"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tickets"
	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tracker"
)

// ClientFactory returns the LLM client for a tenant, typically a
// fallback chain over the tenant's ordered provider list. Nil clients
// are allowed for graphs whose agents do not call a model.
type ClientFactory func(tenantID string) llm.Client

// Orchestrator dispatches work items to graph executions.
type Orchestrator struct {
	registry    *Registry
	checkpoints checkpoint.Store
	tickets     tickets.Store
	queue       queue.Queue
	clients     ClientFactory
	tracker     tracker.Tracker
	retry       fault.RetryConfig
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	tracing     bool
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithClients sets the per-tenant LLM client factory.
func WithClients(f ClientFactory) Option {
	return func(o *Orchestrator) { o.clients = f }
}

// WithTracker sets the ticket-tracker collaborator for progress
// comments and external status transitions.
func WithTracker(t tracker.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithRetry sets the transient-failure retry policy.
func WithRetry(cfg fault.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracing enables span creation through the given manager.
func WithTracing(spans observability.SpanManager) Option {
	return func(o *Orchestrator) {
		if spans != nil {
			o.spans = spans
			o.tracing = true
		}
	}
}

// New creates an orchestrator over the given registry and stores.
func New(registry *Registry, checkpoints checkpoint.Store, ticketStore tickets.Store, q queue.Queue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		checkpoints: checkpoints,
		tickets:     ticketStore,
		queue:       q,
		retry:       fault.DefaultRetry,
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process handles one leased work item.
//
// A nil return means the item is finished and must be acknowledged. A
// non-nil return means processing could not safely complete (storage
// unavailable, concurrent advance of the same ticket); the item stays
// leased and re-delivers after lease expiry, which is the recovery path
// for both.
func (o *Orchestrator) Process(ctx context.Context, item *queue.WorkItem) error {
	switch item.Kind {
	case queue.KindStart:
		return o.processStart(ctx, item)
	case queue.KindResume:
		return o.processResume(ctx, item)
	case queue.KindRetry:
		return o.processRetry(ctx, item)
	case queue.KindCancel:
		return o.processCancel(ctx, item)
	default:
		o.logWarn("dropping work item of unknown kind", "item_id", item.ID, "kind", string(item.Kind))
		return nil
	}
}

func (o *Orchestrator) processStart(ctx context.Context, item *queue.WorkItem) error {
	entry, ok := o.registry.Get(item.Graph)
	if !ok {
		o.logWarn("dropping start item for unknown graph", "item_id", item.ID, "graph", item.Graph)
		return nil
	}

	ticket, err := o.tickets.Get(ctx, item.TicketID)
	if err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			o.logWarn("dropping start item for unknown ticket", "item_id", item.ID, "ticket_id", item.TicketID)
			return nil
		}
		return fmt.Errorf("load ticket: %w", err)
	}

	cp, err := o.checkpoints.Load(ctx, item.TicketID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		cp, err = o.createCheckpoint(ctx, ticket, item.Graph)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("load checkpoint: %w", err)
	case cp.GraphName != item.Graph:
		// A different graph already owns this ticket; the start item is
		// stale (duplicate delivery from a previous transition).
		o.logWarn("dropping stale start item", "item_id", item.ID,
			"ticket_id", item.TicketID, "graph", item.Graph, "active_graph", cp.GraphName)
		return nil
	case cp.Status.Terminal():
		return o.finishTerminal(ctx, ticket, entry, cp)
	}

	// A re-delivered start for a run parked at a gate must not move the
	// ticket off its suspended stage; Run rejects the item below.
	if cp.Status != checkpoint.StatusSuspended {
		if err := o.setTicketStage(ctx, ticket, entry.Running); err != nil {
			return err
		}
	}

	result, err := entry.Graph.Run(ctx, cp, o.runOptions(ticket)...)
	if err != nil {
		return o.engineError(ctx, ticket, err)
	}
	return o.handleResult(ctx, ticket, entry, result)
}

func (o *Orchestrator) processResume(ctx context.Context, item *queue.WorkItem) error {
	if item.Signal == nil {
		o.logWarn("dropping resume item without signal", "item_id", item.ID)
		return nil
	}

	ticket, cp, entry, err := o.loadActive(ctx, item)
	if err != nil || cp == nil {
		return err
	}

	sig := ticketflow.Signal{Type: item.Signal.Type, Feedback: item.Signal.Feedback}
	result, err := entry.Graph.Resume(ctx, cp, sig, o.runOptions(ticket)...)
	switch {
	case errors.Is(err, ticketflow.ErrNotSuspended):
		// Duplicate delivery of an already-applied signal.
		o.logWarn("dropping resume for run that is not suspended",
			"item_id", item.ID, "ticket_id", item.TicketID)
		return nil
	case errors.Is(err, ticketflow.ErrUnexpectedSignal):
		o.logWarn("dropping resume with mismatched signal",
			"item_id", item.ID, "ticket_id", item.TicketID, "signal", sig.Type)
		o.comment(ctx, ticket, fmt.Sprintf("Ignored signal %q: the workflow expects a different decision.", sig.Type))
		return nil
	case err != nil:
		return o.engineError(ctx, ticket, err)
	}
	return o.handleResult(ctx, ticket, entry, result)
}

func (o *Orchestrator) processRetry(ctx context.Context, item *queue.WorkItem) error {
	ticket, cp, entry, err := o.loadActive(ctx, item)
	if err != nil || cp == nil {
		return err
	}
	if cp.Status.Terminal() {
		return o.finishTerminal(ctx, ticket, entry, cp)
	}

	result, err := entry.Graph.Run(ctx, cp, o.runOptions(ticket)...)
	if err != nil {
		return o.engineError(ctx, ticket, err)
	}
	return o.handleResult(ctx, ticket, entry, result)
}

func (o *Orchestrator) processCancel(ctx context.Context, item *queue.WorkItem) error {
	cp, err := o.checkpoints.Load(ctx, item.TicketID)
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	if cp != nil && !cp.Status.Terminal() {
		cp.Status = checkpoint.StatusCancelled
		if err := o.checkpoints.Save(ctx, cp); err != nil {
			return fmt.Errorf("save cancelled checkpoint: %w", err)
		}
		if err := o.checkpoints.Archive(ctx, item.TicketID); err != nil {
			return fmt.Errorf("archive cancelled checkpoint: %w", err)
		}
	}

	if err := o.tickets.SetStage(ctx, item.TicketID, tickets.StageCancelled); err != nil && !errors.Is(err, tickets.ErrNotFound) {
		return fmt.Errorf("set ticket stage: %w", err)
	}
	return nil
}

// loadActive loads the ticket, its active checkpoint, and the entry for
// the checkpoint's graph. A nil checkpoint with nil error means the
// item should be dropped and acknowledged.
func (o *Orchestrator) loadActive(ctx context.Context, item *queue.WorkItem) (*tickets.Ticket, *checkpoint.Checkpoint, Entry, error) {
	cp, err := o.checkpoints.Load(ctx, item.TicketID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			o.logWarn("dropping item: no active checkpoint",
				"item_id", item.ID, "ticket_id", item.TicketID, "kind", string(item.Kind))
			return nil, nil, Entry{}, nil
		}
		return nil, nil, Entry{}, fmt.Errorf("load checkpoint: %w", err)
	}

	entry, ok := o.registry.Get(cp.GraphName)
	if !ok {
		o.logWarn("dropping item: checkpoint names unknown graph",
			"item_id", item.ID, "ticket_id", item.TicketID, "graph", cp.GraphName)
		return nil, nil, Entry{}, nil
	}

	ticket, err := o.tickets.Get(ctx, item.TicketID)
	if err != nil {
		if errors.Is(err, tickets.ErrNotFound) {
			o.logWarn("dropping item for unknown ticket", "item_id", item.ID, "ticket_id", item.TicketID)
			return nil, nil, Entry{}, nil
		}
		return nil, nil, Entry{}, fmt.Errorf("load ticket: %w", err)
	}
	return ticket, cp, entry, nil
}

// createCheckpoint starts a fresh graph run, seeding accumulated state
// from the ticket's most recent archived run so later graphs see the
// artifacts earlier graphs produced.
func (o *Orchestrator) createCheckpoint(ctx context.Context, ticket *tickets.Ticket, graph string) (*checkpoint.Checkpoint, error) {
	cp := checkpoint.New(ticket.ID, ticket.TenantID, graph, "")

	archived, err := o.checkpoints.ListArchived(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list archived checkpoints: %w", err)
	}
	if len(archived) > 0 {
		prior := archived[len(archived)-1]
		for key, artifact := range prior.State {
			cp.PutArtifact(key, artifact.Value, artifact.ProducedBy)
		}
	}
	return cp, nil
}

// handleResult maps a graph outcome onto queue, ticket, and tracker
// effects.
func (o *Orchestrator) handleResult(ctx context.Context, ticket *tickets.Ticket, entry Entry, result *ticketflow.Result) error {
	cp := result.Checkpoint

	switch result.Outcome {
	case ticketflow.OutcomeCompleted:
		if err := o.checkpoints.Archive(ctx, ticket.ID); err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("archive checkpoint: %w", err)
		}
		if result.Transition == "" {
			if err := o.setTicketStage(ctx, ticket, entry.Completed); err != nil {
				return err
			}
			o.transitionTracker(ctx, ticket, entry.Completed)
			o.comment(ctx, ticket, fmt.Sprintf("Workflow finished: graph %s completed.", entry.Graph.Name()))
			return nil
		}

		next, ok := o.registry.Get(result.Transition)
		if !ok {
			return fmt.Errorf("graph %s transitions to unknown graph %s", entry.Graph.Name(), result.Transition)
		}
		if err := o.queue.Enqueue(ctx, queue.NewStart(ticket.TenantID, ticket.ID, result.Transition)); err != nil {
			return fmt.Errorf("enqueue next graph: %w", err)
		}
		if err := o.setTicketStage(ctx, ticket, next.Running); err != nil {
			return err
		}
		o.transitionTracker(ctx, ticket, next.Running)
		return nil

	case ticketflow.OutcomeSuspended:
		if err := o.setTicketStage(ctx, ticket, entry.Suspended); err != nil {
			return err
		}
		o.transitionTracker(ctx, ticket, entry.Suspended)
		if result.Suspension != nil {
			o.comment(ctx, ticket, fmt.Sprintf("Waiting at %s: %s. Unblock with an %s or rejection signal.",
				result.Suspension.Stage, result.Suspension.Reason, result.Suspension.ExpectedSignal))
		}
		return nil

	case ticketflow.OutcomeFailed:
		return o.handleFailure(ctx, ticket, entry, cp, result.Err)

	default:
		return fmt.Errorf("unknown graph outcome %q", result.Outcome)
	}
}

// handleFailure schedules a delayed retry for transient failures with
// budget remaining, and otherwise terminates the ticket.
func (o *Orchestrator) handleFailure(ctx context.Context, ticket *tickets.Ticket, entry Entry, cp *checkpoint.Checkpoint, cause error) error {
	if fault.IsTransient(cause) && cp.RetryCount < o.retry.MaxAttempts {
		delay := o.retry.Backoff(cp.RetryCount)
		if err := o.queue.Enqueue(ctx, queue.NewRetry(ticket.TenantID, ticket.ID, cp.GraphName, delay)); err != nil {
			return fmt.Errorf("enqueue retry: %w", err)
		}
		observability.LogRetryScheduled(o.logger, ticket.ID, cp.RetryCount, delay)
		return nil
	}

	cp.Status = checkpoint.StatusFailed
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("save failed checkpoint: %w", err)
	}
	if err := o.checkpoints.Archive(ctx, ticket.ID); err != nil {
		return fmt.Errorf("archive failed checkpoint: %w", err)
	}
	if err := o.setTicketStage(ctx, ticket, tickets.StageFailed); err != nil {
		return err
	}
	o.transitionTracker(ctx, ticket, tickets.StageFailed)
	o.comment(ctx, ticket, fmt.Sprintf("Workflow failed in graph %s after %d attempts: %v",
		cp.GraphName, cp.RetryCount, cause))
	o.logWarn("ticket failed, manual intervention required",
		"ticket_id", ticket.ID, "graph", cp.GraphName, "attempts", cp.RetryCount, "error", cause.Error())
	return nil
}

// finishTerminal archives a checkpoint that reached a terminal status
// but was not archived before a crash.
func (o *Orchestrator) finishTerminal(ctx context.Context, ticket *tickets.Ticket, entry Entry, cp *checkpoint.Checkpoint) error {
	if err := o.checkpoints.Archive(ctx, ticket.ID); err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return fmt.Errorf("archive terminal checkpoint: %w", err)
	}

	switch cp.Status {
	case checkpoint.StatusCompleted:
		if next := entry.Graph.Transition(); next != "" {
			if err := o.queue.Enqueue(ctx, queue.NewStart(ticket.TenantID, ticket.ID, next)); err != nil {
				return fmt.Errorf("enqueue next graph: %w", err)
			}
			return nil
		}
		return o.setTicketStage(ctx, ticket, entry.Completed)
	case checkpoint.StatusFailed:
		return o.setTicketStage(ctx, ticket, tickets.StageFailed)
	case checkpoint.StatusCancelled:
		return o.setTicketStage(ctx, ticket, tickets.StageCancelled)
	}
	return nil
}

// engineError classifies an engine-level Run/Resume error. Concurrency
// conflicts and everything else leave the item leased for re-delivery,
// after which the reloaded checkpoint decides what still needs doing.
func (o *Orchestrator) engineError(ctx context.Context, ticket *tickets.Ticket, err error) error {
	if errors.Is(err, checkpoint.ErrConcurrencyConflict) {
		observability.LogCheckpointConflict(o.logger, ticket.ID)
		return err
	}
	if errors.Is(err, ticketflow.ErrSuspended) {
		// A re-delivered start or retry item found the run suspended;
		// only an external signal advances it now.
		return nil
	}
	return err
}

func (o *Orchestrator) runOptions(ticket *tickets.Ticket) []ticketflow.RunOption {
	opts := []ticketflow.RunOption{
		ticketflow.WithStore(o.checkpoints),
		ticketflow.WithTicket(ticket),
		ticketflow.WithLogger(o.logger),
		ticketflow.WithMetrics(o.metrics),
	}
	if o.clients != nil {
		opts = append(opts, ticketflow.WithLLM(o.clients(ticket.TenantID)))
	}
	if o.tracing {
		opts = append(opts, ticketflow.WithTracing(o.spans))
	}
	return opts
}

func (o *Orchestrator) setTicketStage(ctx context.Context, ticket *tickets.Ticket, stage tickets.Stage) error {
	if stage == "" || ticket.Stage == stage {
		return nil
	}
	if err := o.tickets.SetStage(ctx, ticket.ID, stage); err != nil {
		return fmt.Errorf("set ticket stage: %w", err)
	}
	ticket.Stage = stage
	return nil
}

// comment posts a tracker comment, best effort.
func (o *Orchestrator) comment(ctx context.Context, ticket *tickets.Ticket, text string) {
	if o.tracker == nil {
		return
	}
	if err := o.tracker.PostComment(ctx, ticket.ID, text); err != nil {
		o.logWarn("tracker comment failed", "ticket_id", ticket.ID, "error", err.Error())
	}
}

// transitionTracker mirrors a lifecycle stage to the tracker, best effort.
func (o *Orchestrator) transitionTracker(ctx context.Context, ticket *tickets.Ticket, stage tickets.Stage) {
	if o.tracker == nil || stage == "" {
		return
	}
	if err := o.tracker.TransitionStatus(ctx, ticket.ID, string(stage)); err != nil {
		o.logWarn("tracker transition failed", "ticket_id", ticket.ID, "error", err.Error())
	}
}

func (o *Orchestrator) logWarn(msg string, args ...any) {
	if o.logger == nil {
		return
	}
	o.logger.Warn(msg, args...)
}
