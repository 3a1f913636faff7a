// Package keys owns the device master key for an unlocked session and the
// in-memory cache of per-chat symmetric keys.
//
// A Manager is created per authenticated session and locked when the
// session ends. Chat keys are never persisted by this package; the codec stores them
// wrapped under the master key.
package keys

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/cryptox"
)

// Manager is safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	masterKey []byte
	chatKeys  map[string][]byte
}

func NewManager() *Manager {
	return &Manager{chatKeys: make(map[string][]byte)}
}

// Unlock installs a copy of masterKey. Any chat keys cached under a previous
// master key are dropped.
func (m *Manager) Unlock(masterKey []byte) error {
	if len(masterKey) != cryptox.KeySize {
		return fmt.Errorf("%w: master key must be %d bytes", common.ErrKeyUnavailable, cryptox.KeySize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	common.WipeByteArray(m.masterKey)
	m.masterKey = append([]byte(nil), masterKey...)
	m.clearLocked()
	return nil
}

// Lock wipes the master key and every cached chat key in one step.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	common.WipeByteArray(m.masterKey)
	m.masterKey = nil
	m.clearLocked()
}

func (m *Manager) IsUnlocked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.masterKey != nil
}

// GetOrCreateChatKey returns the cached key for chatID or generates, caches
// and returns a new random one. Repeated calls return the same slice until
// the cache is cleared.
func (m *Manager) GetOrCreateChatKey(chatID string) []byte {
	m.mu.RLock()
	key, ok := m.chatKeys[chatID]
	m.mu.RUnlock()
	if ok {
		return key
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another caller may have won the race
	if key, ok := m.chatKeys[chatID]; ok {
		return key
	}
	key = cryptox.GenerateKey()
	m.chatKeys[chatID] = key
	return key
}

// GetChatKey returns the cached key without creating one.
func (m *Manager) GetChatKey(chatID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.chatKeys[chatID]
	return key, ok
}

// SetChatKey seeds the cache, typically with a key unwrapped from storage.
// The stored key wins: a different cached key is wiped and replaced, an
// equal one is kept and key is wiped. Reports whether a different key was
// replaced.
func (m *Manager) SetChatKey(chatID string, key []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.chatKeys[chatID]
	if ok && bytes.Equal(cur, key) {
		if len(key) > 0 && &cur[0] != &key[0] {
			common.WipeByteArray(key)
		}
		return false
	}
	if ok {
		common.WipeByteArray(cur)
	}
	m.chatKeys[chatID] = key
	return ok
}

// ForgetChatKey removes and wipes a single cached key.
func (m *Manager) ForgetChatKey(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.chatKeys[chatID]; ok {
		common.WipeByteArray(key)
		delete(m.chatKeys, chatID)
	}
}

// ClearAllChatKeys empties the cache. Must be called on logout, lock or
// master key rotation.
func (m *Manager) ClearAllChatKeys() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	for id, key := range m.chatKeys {
		common.WipeByteArray(key)
		delete(m.chatKeys, id)
	}
}

// CacheSize is diagnostic only.
func (m *Manager) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chatKeys)
}

// WrapChatKey encrypts key under the master key.
func (m *Manager) WrapChatKey(key []byte) ([]byte, error) {
	return m.EncryptWithMasterKey(key)
}

// UnwrapChatKey reverses WrapChatKey.
func (m *Manager) UnwrapChatKey(wrapped []byte) ([]byte, error) {
	var key []byte
	if err := m.DecryptWithMasterKey(wrapped, &key); err != nil {
		return nil, err
	}
	if len(key) != cryptox.KeySize {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("%w: unwrapped chat key has length %d", common.ErrDecryptionFailure, len(key))
	}
	return key, nil
}

// EncryptWithMasterKey seals the JSON encoding of v. It fails with
// common.ErrKeyUnavailable when the manager is locked.
func (m *Manager) EncryptWithMasterKey(v any) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.masterKey == nil {
		return nil, common.ErrKeyUnavailable
	}
	blob, err := cryptox.EncryptEntry(v, m.masterKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEncryptionFailure, err)
	}
	return blob, nil
}

// DecryptWithMasterKey opens blob into v.
func (m *Manager) DecryptWithMasterKey(blob []byte, v any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.masterKey == nil {
		return common.ErrKeyUnavailable
	}
	if err := cryptox.DecryptEntry(blob, m.masterKey, v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecryptionFailure, err)
	}
	return nil
}
