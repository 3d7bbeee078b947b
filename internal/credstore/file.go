package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores each slot as a JSON file inside one directory.
// Writes use temp file + rename for crash safety.
type FileBackend struct {
	dir string
}

// Compile-time check to ensure FileBackend implements Backend
var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a FileBackend rooted at dir, creating it with 0700 permissions
// if it doesn't exist.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileBackend{
		dir: dir,
	}, nil
}

// Path returns the file that holds slot.
func (f *FileBackend) Path(slot Slot) string {
	return filepath.Join(f.dir, string(slot)+".json")
}

// Get returns the stored record. Returns ErrNotFound if the file doesn't exist and an
// error if it is empty or has insecure permissions.
func (f *FileBackend) Get(ctx context.Context, slot Slot) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := f.Path(slot)

	// Check file permissions before reading
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", path, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Removed between stat and read by a concurrent Delete
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty record file %s", path)
	}
	return data, nil
}

// Put atomically saves the record using temp file + rename for crash safety.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileBackend) Put(ctx context.Context, slot Slot, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Create secure temp file in same directory for atomic rename
	tempFile, err := os.CreateTemp(f.dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if err := tempFile.Chmod(0600); err != nil {
		return err
	}
	if _, err := tempFile.Write(data); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// Atomic rename to final location
	return os.Rename(tempName, f.Path(slot))
}

// Delete removes the slot file. A missing file is not an error.
func (f *FileBackend) Delete(ctx context.Context, slot Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(f.Path(slot)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
