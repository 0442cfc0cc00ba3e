// Package checkpoint persists resumable execution state for a ticket's
// current graph run. The store is the only source of truth for resuming
// work after a process restart; saves are guarded by optimistic
// concurrency so two scheduler instances cannot corrupt one ticket.
package checkpoint

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a checkpoint.
type Status string

// Checkpoint statuses. Completed, Failed, and Cancelled are terminal.
const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the graph run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ArtifactVersion is a superseded value of an artifact, kept for audit.
type ArtifactVersion struct {
	Value      string    `json:"value"`
	Version    int       `json:"version"`
	ProducedBy string    `json:"produced_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// Artifact is one named output in accumulated state. Reprocessing the
// producing stage (rejection with feedback) creates a new version under
// the same key; prior versions stay on the lineage.
type Artifact struct {
	Value      string            `json:"value"`
	Version    int               `json:"version"`
	ProducedBy string            `json:"produced_by"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Prior      []ArtifactVersion `json:"prior,omitempty"`

	// Revision is the checkpoint revision the current value was produced
	// in. A stage whose artifact predates the current revision must run
	// again; one produced in the current revision is skipped on
	// re-delivery.
	Revision int `json:"revision"`
}

// RetryEvent records one graph-level failure for diagnosis.
type RetryEvent struct {
	Attempt int       `json:"attempt"`
	Stage   string    `json:"stage"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

// Checkpoint is the durable, resumable execution state for one ticket's
// current graph run. Exactly one non-terminal checkpoint exists per
// ticket at any time; the store enforces this on create.
type Checkpoint struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
	TenantID string `json:"tenant_id"`

	// GraphName and Stage locate the run: Stage is the next stage to
	// execute (or the suspension point currently waiting).
	GraphName string `json:"graph_name"`
	Stage     string `json:"stage"`

	Status Status `json:"status"`

	// State is the flat versioned artifact map accumulated by agents.
	State map[string]Artifact `json:"state"`

	// Suspension metadata, set while Status is StatusSuspended.
	SuspensionReason string `json:"suspension_reason,omitempty"`
	ExpectedSignal   string `json:"expected_signal,omitempty"`

	// Revision counts rejection re-entries. It starts at zero and each
	// rejection bumps it, which forces the revisited stages to produce
	// fresh artifact versions instead of being skipped.
	Revision int `json:"revision"`

	// Retry bookkeeping.
	RetryCount   int          `json:"retry_count"`
	RetryHistory []RetryEvent `json:"retry_history,omitempty"`
	LastError    string       `json:"last_error,omitempty"`

	// Version implements optimistic concurrency: zero means not yet
	// persisted; the store bumps it on every successful Save.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh checkpoint for a graph run starting at stage.
func New(ticketID, tenantID, graphName, stage string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		ID:        uuid.New().String(),
		TicketID:  ticketID,
		TenantID:  tenantID,
		GraphName: graphName,
		Stage:     stage,
		Status:    StatusRunning,
		State:     make(map[string]Artifact),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Artifact returns the artifact for key, if present.
func (c *Checkpoint) Artifact(key string) (Artifact, bool) {
	a, ok := c.State[key]
	return a, ok
}

// HasArtifact reports whether key is present in accumulated state.
func (c *Checkpoint) HasArtifact(key string) bool {
	_, ok := c.State[key]
	return ok
}

// HasCurrentArtifact reports whether key was produced in the current
// revision. This is the skip test for idempotent re-delivery: stale
// artifacts from before a rejection do not count.
func (c *Checkpoint) HasCurrentArtifact(key string) bool {
	a, ok := c.State[key]
	return ok && a.Revision == c.Revision
}

// PutArtifact records an artifact value under key. A new key starts at
// version 1; an existing key gains a version and its previous value is
// preserved on the lineage for audit.
func (c *Checkpoint) PutArtifact(key, value, producedBy string) {
	if c.State == nil {
		c.State = make(map[string]Artifact)
	}

	now := time.Now().UTC()
	prev, exists := c.State[key]
	if !exists {
		c.State[key] = Artifact{
			Value:      value,
			Version:    1,
			ProducedBy: producedBy,
			UpdatedAt:  now,
			Revision:   c.Revision,
		}
		return
	}

	c.State[key] = Artifact{
		Value:      value,
		Version:    prev.Version + 1,
		ProducedBy: producedBy,
		UpdatedAt:  now,
		Revision:   c.Revision,
		Prior: append(prev.Prior, ArtifactVersion{
			Value:      prev.Value,
			Version:    prev.Version,
			ProducedBy: prev.ProducedBy,
			CreatedAt:  prev.UpdatedAt,
		}),
	}
}

// Revisit re-enters stage after a rejection. Bumping the revision makes
// the revisited stages' existing artifacts stale so they run again.
func (c *Checkpoint) Revisit(stage string) {
	c.Revision++
	c.Stage = stage
}

// Suspend marks the checkpoint suspended awaiting an external signal.
func (c *Checkpoint) Suspend(stage, reason, expectedSignal string) {
	c.Stage = stage
	c.Status = StatusSuspended
	c.SuspensionReason = reason
	c.ExpectedSignal = expectedSignal
}

// ClearSuspension resets suspension metadata when execution resumes.
func (c *Checkpoint) ClearSuspension() {
	c.Status = StatusRunning
	c.SuspensionReason = ""
	c.ExpectedSignal = ""
}

// RecordFailure appends a retry event and bumps the retry counter.
func (c *Checkpoint) RecordFailure(stage string, err error) {
	c.RetryCount++
	c.LastError = err.Error()
	c.RetryHistory = append(c.RetryHistory, RetryEvent{
		Attempt: c.RetryCount,
		Stage:   stage,
		Error:   err.Error(),
		At:      time.Now().UTC(),
	})
}
