// Package queue provides the durable, tenant-partitioned queue of pending
// and delayed work items that drives workflow execution.
//
// Delivery is at-least-once: a leased item whose lease expires without
// acknowledgment becomes eligible for re-lease, so consumers must be
// idempotent. Backoff delays are expressed through the visible-after
// timestamp.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind tags the work item payload union.
type Kind string

// Work item kinds.
const (
	// KindStart starts the named graph from stage 0.
	KindStart Kind = "start"

	// KindResume delivers an external signal to a suspended graph.
	KindResume Kind = "resume"

	// KindRetry re-runs a failed graph from its last completed stage.
	KindRetry Kind = "retry"

	// KindCancel requests cancellation of the ticket's active run.
	KindCancel Kind = "cancel"
)

// Signal types delivered with KindResume items.
const (
	SignalApproval  = "approval"
	SignalRejection = "rejection"
)

// Signal is the payload of a resume item: the external decision and any
// feedback text that accompanies a rejection.
type Signal struct {
	Type     string `json:"type"`
	Feedback string `json:"feedback,omitempty"`
}

// WorkItem is one queued instruction to start, resume, retry, or cancel
// a ticket's workflow.
type WorkItem struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	TicketID string `json:"ticket_id"`

	Kind Kind `json:"kind"`

	// Graph names the target graph for KindStart and KindRetry.
	Graph string `json:"graph,omitempty"`

	// Signal carries the external decision for KindResume.
	Signal *Signal `json:"signal,omitempty"`

	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAfter time.Time `json:"visible_after"`

	// Lease state. Empty owner means not leased.
	LeaseOwner     string    `json:"lease_owner,omitempty"`
	LeaseExpiresAt time.Time `json:"lease_expires_at,omitempty"`

	// Attempts counts deliveries, including the current one.
	Attempts int `json:"attempts"`
}

// NewStart creates a work item that starts graph from stage 0.
func NewStart(tenantID, ticketID, graph string) *WorkItem {
	return newItem(tenantID, ticketID, KindStart, graph, nil)
}

// NewResume creates a work item that delivers an external signal.
func NewResume(tenantID, ticketID string, sig Signal) *WorkItem {
	return newItem(tenantID, ticketID, KindResume, "", &sig)
}

// NewRetry creates a delayed retry item for graph, visible after delay.
func NewRetry(tenantID, ticketID, graph string, delay time.Duration) *WorkItem {
	item := newItem(tenantID, ticketID, KindRetry, graph, nil)
	item.VisibleAfter = item.EnqueuedAt.Add(delay)
	return item
}

// NewCancel creates a work item requesting cancellation.
func NewCancel(tenantID, ticketID string) *WorkItem {
	return newItem(tenantID, ticketID, KindCancel, "", nil)
}

func newItem(tenantID, ticketID string, kind Kind, graph string, sig *Signal) *WorkItem {
	now := time.Now().UTC()
	return &WorkItem{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		TicketID:     ticketID,
		Kind:         kind,
		Graph:        graph,
		Signal:       sig,
		EnqueuedAt:   now,
		VisibleAfter: now,
	}
}

// Queue errors.
var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("work item not found")

	// ErrLeaseExpired is returned when acting on an item whose lease has
	// lapsed or was never held; the item may already be re-delivered.
	ErrLeaseExpired = errors.New("work item lease expired")

	// ErrStoreClosed is returned when operating on a closed queue.
	ErrStoreClosed = errors.New("queue is closed")
)

// LeaseOptions configures one LeaseBatch call.
type LeaseOptions struct {
	// Owner identifies the leasing scheduler instance.
	Owner string

	// MaxItems bounds the batch size.
	MaxItems int

	// LeaseDuration is how long leased items stay invisible.
	LeaseDuration time.Duration

	// ExcludeTenants skips tenants that are at their concurrency budget.
	ExcludeTenants []string
}

// Queue is the durable work item queue.
type Queue interface {
	// Enqueue appends a work item. Fails only on storage unavailability.
	Enqueue(ctx context.Context, item *WorkItem) error

	// LeaseBatch atomically selects up to MaxItems items that are visible
	// and not currently leased (or whose lease expired), marks them leased
	// by Owner, and returns them oldest first. Safe under concurrent
	// callers: no two callers lease the same item.
	LeaseBatch(ctx context.Context, opts LeaseOptions) ([]*WorkItem, error)

	// Acknowledge removes the item after successful processing.
	// Returns ErrLeaseExpired if the owner no longer holds the lease.
	Acknowledge(ctx context.Context, itemID, owner string) error

	// Release clears the lease early so another worker picks the item up
	// sooner (graceful shutdown).
	Release(ctx context.Context, itemID, owner string) error

	// RenewLease extends an active lease for a long-running item.
	RenewLease(ctx context.Context, itemID, owner string, d time.Duration) error

	// Close releases queue resources.
	Close() error
}
