package infra

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

const (
	keyFileName = "store.key"
	keySize     = 32 // 256-bit SQLCipher passphrase
)

// Keyring provisions and serves the store encryption key: a 256-bit
// value, hex-encoded to match the store's PRAGMA key form, in a 0600
// file inside the data directory. Without it the policy state on disk
// is unreadable, which is the whole point of the encrypted store.
type Keyring struct {
	path string
}

// NewKeyring creates a keyring rooted in the given data directory.
func NewKeyring(dataDir string) *Keyring {
	return &Keyring{path: filepath.Join(dataDir, keyFileName)}
}

// Key returns the store key, generating and persisting a fresh one the
// first time it is asked. An unreadable or malformed key file is an
// error, never silently replaced: overwriting it would orphan the
// database it encrypts.
func (k *Keyring) Key() ([]byte, error) {
	encoded, err := os.ReadFile(k.path)
	if os.IsNotExist(err) {
		return k.provision()
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", k.path, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("key file %s holds %d bytes, want %d", k.path, len(key), keySize)
	}
	return key, nil
}

func (k *Keyring) provision() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate store key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(k.path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}

var _ domain.KeyProvider = (*Keyring)(nil)
