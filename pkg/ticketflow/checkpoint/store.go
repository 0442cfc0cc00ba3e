package checkpoint

import (
	"context"
	"errors"
)

// Store errors.
var (
	// ErrNotFound is returned when no active checkpoint exists for a ticket.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrConcurrencyConflict is returned when a Save races another writer:
	// either the stored version differs from the expected one, or a create
	// collides with an existing active checkpoint. Callers must reload and
	// re-evaluate.
	ErrConcurrencyConflict = errors.New("checkpoint concurrency conflict")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("checkpoint store is closed")
)

// Store persists checkpoints. Implementations must enforce at most one
// active checkpoint per ticket and optimistic concurrency on Save.
type Store interface {
	// Load returns the active checkpoint for a ticket.
	// Returns ErrNotFound if the ticket has none (new ticket).
	Load(ctx context.Context, ticketID string) (*Checkpoint, error)

	// Save persists the checkpoint atomically. A checkpoint with
	// Version 0 is created; creation fails with ErrConcurrencyConflict
	// if the ticket already has an active checkpoint. An update fails
	// with ErrConcurrencyConflict if the stored version does not match.
	// On success the checkpoint's Version is bumped in place.
	Save(ctx context.Context, cp *Checkpoint) error

	// Archive moves the ticket's checkpoint out of the active set,
	// preserving it for audit. Returns ErrNotFound if none is active.
	Archive(ctx context.Context, ticketID string) error

	// ListArchived returns archived checkpoints for a ticket, oldest first.
	ListArchived(ctx context.Context, ticketID string) ([]*Checkpoint, error)

	// Close releases store resources.
	Close() error
}
