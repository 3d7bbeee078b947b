package credstore

import (
	"bytes"
	"context"
	"sync"
)

// OverlayBackend layers process-local writes over a read-only Backend. Records put or
// deleted through the overlay shadow the base until the process exits; the base is never
// written.
type OverlayBackend struct {
	base Backend

	mu      sync.Mutex
	records map[Slot][]byte
	deleted map[Slot]bool
}

// Compile-time check to ensure OverlayBackend implements Backend
var _ Backend = (*OverlayBackend)(nil)

// NewOverlayBackend creates an OverlayBackend reading through to base.
func NewOverlayBackend(base Backend) *OverlayBackend {
	return &OverlayBackend{
		base:    base,
		records: make(map[Slot][]byte),
		deleted: make(map[Slot]bool),
	}
}

// Get returns the overlay record for slot, falling back to the base.
func (o *OverlayBackend) Get(ctx context.Context, slot Slot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.deleted[slot] {
		o.mu.Unlock()
		return nil, ErrNotFound
	}
	if data, ok := o.records[slot]; ok {
		o.mu.Unlock()
		return bytes.Clone(data), nil
	}
	o.mu.Unlock()

	return o.base.Get(ctx, slot)
}

// Put stores a copy of data in the overlay.
func (o *OverlayBackend) Put(ctx context.Context, slot Slot, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	o.records[slot] = bytes.Clone(data)
	delete(o.deleted, slot)
	o.mu.Unlock()
	return nil
}

// Delete hides slot, including any record the base holds for it.
func (o *OverlayBackend) Delete(ctx context.Context, slot Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	delete(o.records, slot)
	o.deleted[slot] = true
	o.mu.Unlock()
	return nil
}
