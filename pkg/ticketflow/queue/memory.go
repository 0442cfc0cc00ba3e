package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryQueue is an in-memory queue for testing.
// Data is lost when the process exits.
type MemoryQueue struct {
	mu     sync.Mutex
	items  map[string][]byte // itemID -> serialized work item
	closed bool
}

// NewMemoryQueue creates a new in-memory work queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string][]byte)}
}

// Enqueue implements Queue.
func (m *MemoryQueue) Enqueue(_ context.Context, item *WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	data, err := encodeItem(item)
	if err != nil {
		return err
	}
	m.items[item.ID] = data
	return nil
}

// LeaseBatch implements Queue.
func (m *MemoryQueue) LeaseBatch(_ context.Context, opts LeaseOptions) ([]*WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	excluded := make(map[string]bool, len(opts.ExcludeTenants))
	for _, t := range opts.ExcludeTenants {
		excluded[t] = true
	}

	now := time.Now().UTC()
	var eligible []*WorkItem
	for _, data := range m.items {
		item, err := decodeItem(data)
		if err != nil {
			return nil, err
		}
		if excluded[item.TenantID] {
			continue
		}
		if item.VisibleAfter.After(now) {
			continue
		}
		if item.LeaseOwner != "" && item.LeaseExpiresAt.After(now) {
			continue
		}
		eligible = append(eligible, item)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].EnqueuedAt.Before(eligible[j].EnqueuedAt)
	})
	if opts.MaxItems > 0 && len(eligible) > opts.MaxItems {
		eligible = eligible[:opts.MaxItems]
	}

	for _, item := range eligible {
		item.LeaseOwner = opts.Owner
		item.LeaseExpiresAt = now.Add(opts.LeaseDuration)
		item.Attempts++

		data, err := encodeItem(item)
		if err != nil {
			return nil, err
		}
		m.items[item.ID] = data
	}
	return eligible, nil
}

// Acknowledge implements Queue.
func (m *MemoryQueue) Acknowledge(_ context.Context, itemID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	item, err := m.heldBy(itemID, owner)
	if err != nil {
		return err
	}
	delete(m.items, item.ID)
	return nil
}

// Release implements Queue.
func (m *MemoryQueue) Release(_ context.Context, itemID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	item, err := m.heldBy(itemID, owner)
	if err != nil {
		return err
	}

	item.LeaseOwner = ""
	item.LeaseExpiresAt = time.Time{}
	data, err := encodeItem(item)
	if err != nil {
		return err
	}
	m.items[item.ID] = data
	return nil
}

// RenewLease implements Queue.
func (m *MemoryQueue) RenewLease(_ context.Context, itemID, owner string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	item, err := m.heldBy(itemID, owner)
	if err != nil {
		return err
	}

	item.LeaseExpiresAt = time.Now().UTC().Add(d)
	data, err := encodeItem(item)
	if err != nil {
		return err
	}
	m.items[item.ID] = data
	return nil
}

// Close implements Queue.
func (m *MemoryQueue) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.items = nil
	return nil
}

// Len returns the number of stored items. Useful for testing.
func (m *MemoryQueue) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// heldBy loads an item and verifies owner still holds a live lease.
// Caller must hold m.mu.
func (m *MemoryQueue) heldBy(itemID, owner string) (*WorkItem, error) {
	data, ok := m.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	item, err := decodeItem(data)
	if err != nil {
		return nil, err
	}
	if item.LeaseOwner != owner || !item.LeaseExpiresAt.After(time.Now().UTC()) {
		return nil, ErrLeaseExpired
	}
	return item, nil
}

func encodeItem(item *WorkItem) ([]byte, error) {
	return json.Marshal(item)
}

func decodeItem(data []byte) (*WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
