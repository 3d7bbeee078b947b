package credstore

import (
	"context"
	"fmt"
	"os"
)

// EnvBackend provides read-only access to session slots stored in environment variables.
// Suitable for pre-provisioned sessions but not login or refresh (requires writable storage).
type EnvBackend struct {
	keys map[Slot]string
}

// Compile-time check to ensure EnvBackend implements Backend
var _ Backend = (*EnvBackend)(nil)

// NewEnvBackend creates an EnvBackend reading the tokens and user records from the given
// environment variables. Returns error if a variable name is empty.
func NewEnvBackend(tokensKey, userKey string) (*EnvBackend, error) {
	if tokensKey == "" {
		return nil, fmt.Errorf("tokens environment key cannot be empty")
	}
	if userKey == "" {
		return nil, fmt.Errorf("user environment key cannot be empty")
	}

	return &EnvBackend{
		keys: map[Slot]string{
			SlotTokens: tokensKey,
			SlotUser:   userKey,
		},
	}, nil
}

// Get returns the record from the environment variable. Unset or empty variables are
// reported as ErrNotFound.
func (e *EnvBackend) Get(ctx context.Context, slot Slot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, ok := e.keys[slot]
	if !ok {
		return nil, fmt.Errorf("unknown slot %q", slot)
	}

	value := os.Getenv(key)
	if value == "" {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

// Put is not supported for environment variables (they are read-only).
func (e *EnvBackend) Put(ctx context.Context, slot Slot, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("writing %s: %w", e.keys[slot], ErrReadOnly)
}

// Delete is not supported for environment variables (they are read-only).
func (e *EnvBackend) Delete(ctx context.Context, slot Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("deleting %s: %w", e.keys[slot], ErrReadOnly)
}
