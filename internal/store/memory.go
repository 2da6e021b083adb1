package store

import (
	"sort"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Records are keyed by session name, with new records replacing previous
// values. Subscribers receive updates via buffered channels. Sends are
// non-blocking; a full subscriber buffer drops the update for that
// subscriber only.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]SessionRecord
	subscribers map[chan SessionRecord]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]SessionRecord),
		subscribers: make(map[chan SessionRecord]struct{}),
	}
}

// Update stores record and notifies all subscribers.
func (m *MemoryStore) Update(record SessionRecord) {
	m.mu.Lock()
	m.records[record.Name] = record
	m.mu.Unlock()

	m.notifySubscribers(record)
}

// GetAll returns a copy of all stored records ordered by name.
func (m *MemoryStore) GetAll() []SessionRecord {
	m.mu.RLock()
	records := make([]SessionRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records
}

// Subscribe creates a new subscription with a buffer of 100 updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan SessionRecord {
	ch := make(chan SessionRecord, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan SessionRecord) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// map keys are bidirectional; compare against the receive-only view
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends record to every subscriber without blocking.
func (m *MemoryStore) notifySubscribers(record SessionRecord) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- record:
		default:
			// subscriber is slow, drop the message
		}
	}
}
