package tickets

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory ticket store for testing.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string][]byte // ticketID -> serialized ticket
	closed  bool
}

// NewMemoryStore creates a new in-memory ticket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string][]byte)}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, t *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.tickets[t.ID]; exists {
		return ErrAlreadyExists
	}

	data, err := encodeTicket(t)
	if err != nil {
		return err
	}
	m.tickets[t.ID] = data
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	data, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeTicket(data)
}

// SetStage implements Store.
func (m *MemoryStore) SetStage(_ context.Context, id string, stage Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	data, ok := m.tickets[id]
	if !ok {
		return ErrNotFound
	}
	t, err := decodeTicket(data)
	if err != nil {
		return err
	}

	t.Stage = stage
	t.UpdatedAt = time.Now().UTC()

	data, err = encodeTicket(t)
	if err != nil {
		return err
	}
	m.tickets[id] = data
	return nil
}

// ListByTenant implements Store.
func (m *MemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []*Ticket
	for _, data := range m.tickets {
		t, err := decodeTicket(data)
		if err != nil {
			return nil, err
		}
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.tickets = nil
	return nil
}

func encodeTicket(t *Ticket) ([]byte, error) {
	return json.Marshal(t)
}

func decodeTicket(data []byte) (*Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
