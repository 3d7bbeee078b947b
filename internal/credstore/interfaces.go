package credstore

import (
	"context"
	"errors"
)

// Slot names one of the two records a Backend holds.
type Slot string

const (
	SlotTokens Slot = "tokens"
	SlotUser   Slot = "user"
)

// Slots lists every slot a session occupies, in write order.
var Slots = []Slot{SlotTokens, SlotUser}

var (
	// ErrNotFound is returned by a Backend when a slot holds no record.
	ErrNotFound = errors.New("credstore: slot not found")

	// ErrReadOnly is returned by backends that cannot be written (e.g., environment variables).
	ErrReadOnly = errors.New("credstore: storage is read-only")
)

// Backend reads and writes raw slot records to persistent storage.
type Backend interface {
	// Get returns the record stored in slot. Returns ErrNotFound if the slot is unset.
	Get(ctx context.Context, slot Slot) ([]byte, error)

	// Put replaces the record stored in slot. Returns ErrReadOnly if the storage
	// backend cannot be written.
	Put(ctx context.Context, slot Slot, data []byte) error

	// Delete removes the record stored in slot. Deleting an unset slot is not an error.
	Delete(ctx context.Context, slot Slot) error
}
