package service

import (
	"sync"

	"github.com/Sandro385/expert-tune/internal/model"
)

// CredentialTable is the authentication layer's in-memory view of the user store.
// It is always rebuilt from a full read and never patched entry by entry.
type CredentialTable struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewCredentialTable creates an empty table.
func NewCredentialTable() *CredentialTable {
	return &CredentialTable{entries: make(map[string]string)}
}

// Rebuild replaces the whole table with users.
func (t *CredentialTable) Rebuild(users []model.User) {
	entries := make(map[string]string, len(users))
	for _, u := range users {
		entries[u.Username] = u.PasswordHash
	}
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
}

// Lookup returns the stored hash for username.
func (t *CredentialTable) Lookup(username string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.entries[username]
	return h, ok
}

// Len returns the number of known users.
func (t *CredentialTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
