package credstore

import (
	"bytes"
	"context"
	"sync"
)

// MemoryBackend keeps slot records in process memory. Sessions do not survive a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[Slot][]byte
}

// Compile-time check to ensure MemoryBackend implements Backend
var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[Slot][]byte)}
}

// Get returns a copy of the stored record. Returns ErrNotFound if the slot is unset.
func (m *MemoryBackend) Get(ctx context.Context, slot Slot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.records[slot]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

// Put stores a copy of data in slot.
func (m *MemoryBackend) Put(ctx context.Context, slot Slot, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.records[slot] = bytes.Clone(data)
	m.mu.Unlock()
	return nil
}

// Delete removes slot.
func (m *MemoryBackend) Delete(ctx context.Context, slot Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.records, slot)
	m.mu.Unlock()
	return nil
}
