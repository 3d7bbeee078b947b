// Package credstore persists the current session: the token set and the identity of the
// signed-in user.
//
// A Store keeps both halves of a session in two fixed slots of a Backend and always writes
// and clears them together. Backends trade off durability and security differently:
//   - File: one JSON file per slot with atomic writes and owner-only permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Env: read-only environment variables (requires external secret management)
//   - Memory: process-local, lost on exit
//
// Login, refresh and logout require writable storage (file, keyring or memory), while a
// pre-provisioned session can be read from env storage.
package credstore
