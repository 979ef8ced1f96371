// Package vault holds the session passphrase in process memory only.
//
// The key is never written to disk or logged. A new process always starts
// with an empty vault, so the operator must unlock again after a restart
// even when the identity session itself was restored.
package vault

import (
	"sync"

	"github.com/dmitrijs2005/adminvault/internal/common"
)

// Vault is safe for concurrent use.
type Vault struct {
	mu  sync.RWMutex
	key []byte
}

func New() *Vault {
	return &Vault{}
}

// SetKey replaces the active key. An empty key clears the vault.
func (v *Vault) SetKey(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	common.WipeByteArray(v.key)
	v.key = nil
	if key != "" {
		v.key = []byte(key)
	}
}

// Key returns the active key and whether one is set.
func (v *Vault) Key() (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.key) == 0 {
		return "", false
	}
	return string(v.key), true
}

func (v *Vault) HasKey() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.key) > 0
}

// Clear wipes and removes the active key.
func (v *Vault) Clear() {
	v.SetKey("")
}
