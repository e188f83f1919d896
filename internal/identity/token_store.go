package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TokenStore persists the session token across process restarts. The token
// lives in a single file readable only by the owning user.
type TokenStore struct {
	path string
}

// NewTokenStore creates a token store at the given file path
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Load reads the persisted token. An absent file means no session and is
// not an error.
func (ts *TokenStore) Load() (string, error) {
	data, err := os.ReadFile(ts.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the token, creating parent directories as needed
func (ts *TokenStore) Save(token string) error {
	dir := filepath.Dir(ts.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(ts.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("failed to write session token: %w", err)
	}
	return nil
}

// Clear removes the persisted token. Clearing an absent token is a no-op.
func (ts *TokenStore) Clear() error {
	err := os.Remove(ts.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session token: %w", err)
	}
	return nil
}
