package checkpoint

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.Mutex
	active   map[string][]byte   // ticketID -> serialized checkpoint
	versions map[string]int64    // ticketID -> stored version
	archived map[string][][]byte // ticketID -> serialized checkpoints, oldest first
	closed   bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active:   make(map[string][]byte),
		versions: make(map[string]int64),
		archived: make(map[string][][]byte),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, ticketID string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	data, ok := m.active[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	stored, exists := m.versions[cp.TicketID]
	if cp.Version == 0 {
		if exists {
			return ErrConcurrencyConflict
		}
	} else if !exists || stored != cp.Version {
		return ErrConcurrencyConflict
	}

	cp.Version++
	cp.UpdatedAt = time.Now().UTC()

	data, err := encode(cp)
	if err != nil {
		cp.Version--
		return err
	}

	m.active[cp.TicketID] = data
	m.versions[cp.TicketID] = cp.Version
	return nil
}

// Archive implements Store.
func (m *MemoryStore) Archive(_ context.Context, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	data, ok := m.active[ticketID]
	if !ok {
		return ErrNotFound
	}

	m.archived[ticketID] = append(m.archived[ticketID], data)
	delete(m.active, ticketID)
	delete(m.versions, ticketID)
	return nil
}

// ListArchived implements Store.
func (m *MemoryStore) ListArchived(_ context.Context, ticketID string) ([]*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := m.archived[ticketID]
	out := make([]*Checkpoint, 0, len(entries))
	for _, data := range entries {
		cp, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.active = nil
	m.versions = nil
	m.archived = nil
	return nil
}

// ActiveCount returns the number of active checkpoints. Useful for testing.
func (m *MemoryStore) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func encode(cp *Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
