// Package tickets stores the Ticket records whose lifecycle the
// orchestrator drives. Tickets are mutated only through graph outcomes.
package tickets

import (
	"context"
	"errors"
	"time"
)

// Stage is a ticket's position in the delivery lifecycle.
type Stage string

// Lifecycle stages.
const (
	StageRefining             Stage = "refining"
	StagePlanning             Stage = "planning"
	StageAwaitingPlanApproval Stage = "awaiting_plan_approval"
	StageImplementing         Stage = "implementing"
	StageAwaitingCodeReview   Stage = "awaiting_code_review"
	StageApproved             Stage = "approved"
	StageFailed               Stage = "failed"
	StageCancelled            Stage = "cancelled"
)

// Terminal reports whether no further workflow runs for the ticket.
func (s Stage) Terminal() bool {
	return s == StageApproved || s == StageFailed || s == StageCancelled
}

// Ticket is the subject of a workflow.
type Ticket struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	Stage Stage `json:"stage"`

	// RepoRef names the repository the ticket's work lands in,
	// as owner/name.
	RepoRef string `json:"repo_ref"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a ticket at the start of its lifecycle.
func New(id, tenantID, title, repoRef string) *Ticket {
	now := time.Now().UTC()
	return &Ticket{
		ID:        id,
		TenantID:  tenantID,
		Title:     title,
		Stage:     StageRefining,
		RepoRef:   repoRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Store errors.
var (
	// ErrNotFound is returned when a ticket does not exist.
	ErrNotFound = errors.New("ticket not found")

	// ErrAlreadyExists is returned when creating a duplicate ticket ID.
	ErrAlreadyExists = errors.New("ticket already exists")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("ticket store is closed")
)

// Store persists tickets.
type Store interface {
	// Create inserts a new ticket.
	Create(ctx context.Context, t *Ticket) error

	// Get loads a ticket by ID.
	Get(ctx context.Context, id string) (*Ticket, error)

	// SetStage moves the ticket to stage and bumps its update time.
	SetStage(ctx context.Context, id string, stage Stage) error

	// ListByTenant returns a tenant's tickets, oldest first.
	ListByTenant(ctx context.Context, tenantID string) ([]*Ticket, error)

	// Close releases store resources.
	Close() error
}
