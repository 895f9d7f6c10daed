package auditlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/byteness/keyring"

	"github.com/byteness/zerotrust-mesh/internal/zterrors"
)

// keyringServiceName and keyringKeyName locate the audit key in whichever
// OS keyring backend is available, following the keyringConfigDefaults
// (cli/global.go) ServiceName convention.
const (
	keyringServiceName = "zonode-audit"
	keyringKeyName     = "audit-encryption-key"
)

// KeyStore loads and persists the audit log's AES-256 key.
type KeyStore interface {
	Load() ([]byte, error)
	Store(key []byte) error
}

// keyringStore stores the key in the OS-native keyring (macOS Keychain,
// Linux kernel keyring/Secret Service, Windows Credential Manager),
// grounded on the keyring.Config/keyring.Open usage in cli/global.go.
type keyringStore struct {
	ring keyring.Keyring
}

func newKeyringStore() (*keyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    keyringServiceName,
		LibSecretCollectionName:        "zonode",
		KeychainTrustApplication:       true,
		KeychainAccessibleWhenUnlocked: true,
		KeychainSynchronizable:         false,
	})
	if err != nil {
		return nil, fmt.Errorf("open OS keyring: %w", err)
	}
	return &keyringStore{ring: ring}, nil
}

func (k *keyringStore) Load() ([]byte, error) {
	item, err := k.ring.Get(keyringKeyName)
	if err != nil {
		return nil, err
	}
	return item.Data, nil
}

func (k *keyringStore) Store(key []byte) error {
	return k.ring.Set(keyring.Item{
		Key:         keyringKeyName,
		Data:        key,
		Label:       "zonode audit log encryption key",
		Description: "AES-256-GCM key for the tamper-evident audit log",
	})
}

// fileKeyStore is the fallback when no OS keyring backend is available: a
// single owner-only-readable (0600) file, grounded on
// 0gfoundation's SealedSecretStore file-permission discipline.
type fileKeyStore struct {
	path string
}

func newFileKeyStore(path string) *fileKeyStore {
	return &fileKeyStore{path: path}
}

func (f *fileKeyStore) Load() ([]byte, error) {
	return os.ReadFile(f.path)
}

func (f *fileKeyStore) Store(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	return os.WriteFile(f.path, key, 0600)
}

// OpenKeyStore tries the OS keyring first and falls back to a local file
// under fallbackPath if no keyring backend is usable on this host.
func OpenKeyStore(fallbackPath string) (KeyStore, error) {
	if ks, err := newKeyringStore(); err == nil {
		return ks, nil
	}
	return newFileKeyStore(fallbackPath), nil
}

// LoadOrCreateKey loads the audit key from ks. fresh reports whether this
// is a brand-new log directory with no segments written yet: only then is
// a missing or corrupt (wrong-length) key treated as first-use and
// silently replaced. On a reopen of a directory that already holds
// segments, a missing or corrupt key means the original key was lost or
// damaged; generating a new one here would silently orphan every
// previously-written, hash-chained record, so that case is reported as a
// fatal open error instead.
func LoadOrCreateKey(ks KeyStore, fresh bool) ([]byte, error) {
	key, err := ks.Load()
	if err == nil && len(key) == KeySize {
		return key, nil
	}
	if !fresh {
		return nil, zterrors.Wrap(zterrors.KindAuditUnavailable, err,
			"audit encryption key is missing or corrupt on reopen of an existing audit log")
	}
	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := ks.Store(key); err != nil {
		return nil, fmt.Errorf("persist new audit key: %w", err)
	}
	return key, nil
}
