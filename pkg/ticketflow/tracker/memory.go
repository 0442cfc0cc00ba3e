package tracker

import (
	"context"
	"sync"
)

// Memory is an in-memory Tracker for tests and local development.
// It records every comment and transition for inspection.
type Memory struct {
	mu          sync.Mutex
	tickets     map[string]*ExternalTicket
	comments    map[string][]string
	transitions map[string][]string
}

// NewMemory creates an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{
		tickets:     make(map[string]*ExternalTicket),
		comments:    make(map[string][]string),
		transitions: make(map[string][]string),
	}
}

// Put seeds a ticket.
func (m *Memory) Put(t *ExternalTicket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.Key] = t
}

// GetTicket implements Tracker.
func (m *Memory) GetTicket(_ context.Context, key string) (*ExternalTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[key]
	if !ok {
		return nil, ErrTicketNotFound
	}
	copied := *t
	return &copied, nil
}

// PostComment implements Tracker.
func (m *Memory) PostComment(_ context.Context, key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[key] = append(m.comments[key], text)
	return nil
}

// TransitionStatus implements Tracker.
func (m *Memory) TransitionStatus(_ context.Context, key, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transitions[key] = append(m.transitions[key], status)
	if t, ok := m.tickets[key]; ok {
		t.Status = status
	}
	return nil
}

// Comments returns the comments posted against key, in order.
func (m *Memory) Comments(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.comments[key]))
	copy(out, m.comments[key])
	return out
}

// Transitions returns the status transitions applied to key, in order.
func (m *Memory) Transitions(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.transitions[key]))
	copy(out, m.transitions[key])
	return out
}
