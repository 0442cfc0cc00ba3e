// Package tracker abstracts the external ticket-tracking system. The
// orchestrator posts progress comments and mirrors lifecycle transitions
// through this boundary without knowing which tracker backs it.
package tracker

import (
	"context"
	"errors"
)

// ErrTicketNotFound is returned when the tracker does not know the key.
var ErrTicketNotFound = errors.New("tracker ticket not found")

// ExternalTicket is the tracker's view of a ticket.
type ExternalTicket struct {
	Key         string
	Title       string
	Description string
	Status      string
}

// Tracker is the ticket-tracker collaborator.
type Tracker interface {
	// GetTicket reads the external ticket's description and fields.
	GetTicket(ctx context.Context, key string) (*ExternalTicket, error)

	// PostComment adds a comment visible to the ticket's watchers.
	PostComment(ctx context.Context, key, text string) error

	// TransitionStatus moves the external ticket to status.
	TransitionStatus(ctx context.Context, key, status string) error
}
