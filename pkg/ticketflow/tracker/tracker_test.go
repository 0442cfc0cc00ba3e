package tracker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/tracker"
)

func TestMemoryTracker(t *testing.T) {
	ctx := context.Background()
	tr := tracker.NewMemory()
	tr.Put(&tracker.ExternalTicket{Key: "T1", Title: "Add rate limiting", Description: "desc", Status: "open"})

	got, err := tr.GetTicket(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "Add rate limiting", got.Title)

	_, err = tr.GetTicket(ctx, "missing")
	assert.ErrorIs(t, err, tracker.ErrTicketNotFound)

	require.NoError(t, tr.PostComment(ctx, "T1", "plan ready for review"))
	require.NoError(t, tr.PostComment(ctx, "T1", "approved"))
	assert.Equal(t, []string{"plan ready for review", "approved"}, tr.Comments("T1"))

	require.NoError(t, tr.TransitionStatus(ctx, "T1", "in review"))
	assert.Equal(t, []string{"in review"}, tr.Transitions("T1"))

	got, err = tr.GetTicket(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "in review", got.Status)
}
