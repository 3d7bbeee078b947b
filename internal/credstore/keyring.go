package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringBackend provides OS-native secure credential storage for session slots.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringBackend struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringBackend implements Backend
var _ Backend = (*KeyringBackend)(nil)

// NewKeyringBackend creates a KeyringBackend for the OS-native credential storage
// (macOS Keychain, Windows Credential Manager, etc.) using the given service and user identifiers.
// Each slot is stored as a separate secret under the account "<user>:<slot>".
func NewKeyringBackend(service, user string) (*KeyringBackend, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringBackend{
		service: service,
		user:    user,
	}, nil
}

func (k *KeyringBackend) account(slot Slot) string {
	return k.user + ":" + string(slot)
}

// Get returns the record from the system keyring. Returns ErrNotFound if no secret exists.
func (k *KeyringBackend) Get(ctx context.Context, slot Slot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(k.service, k.account(slot))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if secret == "" {
		return nil, fmt.Errorf("empty record in keyring for service %s, account %s", k.service, k.account(slot))
	}

	return []byte(secret), nil
}

// Put persists the record to the system keyring, overwriting any existing value.
func (k *KeyringBackend) Put(ctx context.Context, slot Slot, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return keyring.Set(k.service, k.account(slot), string(data))
}

// Delete removes the record from the system keyring. A missing secret is not an error.
func (k *KeyringBackend) Delete(ctx context.Context, slot Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Delete(k.service, k.account(slot)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
