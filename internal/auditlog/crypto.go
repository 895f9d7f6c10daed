package auditlog

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// sealer wraps an AES-256-GCM AEAD for encrypting audit lines, grounded
// on 0gfoundation's SealedSecretStore envelope (nonce‖ciphertext).
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("audit encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &sealer{gcm: gcm}, nil
}

// seal encrypts plaintext, returning nonce‖ciphertext‖tag.
func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a nonce‖ciphertext‖tag blob produced by seal.
func (s *sealer) open(blob []byte) ([]byte, error) {
	if len(blob) < s.gcm.NonceSize() {
		return nil, fmt.Errorf("audit record too short")
	}
	nonce, ciphertext := blob[:s.gcm.NonceSize()], blob[s.gcm.NonceSize():]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt audit record: %w", err)
	}
	return plaintext, nil
}

// GenerateKey creates a fresh random AES-256 key for the audit log.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate audit key: %w", err)
	}
	return key, nil
}

// chainHash computes the next link in the hash chain: sha256(prevHash ||
// canonical record bytes), hex-encoded. The first record in a fresh log
// carries genesisHash as its prevHash.
func chainHash(prevHash string, recordJSON []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(recordJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// genesisHash is the prev-hash value for the first record in a fresh log.
const genesisHash = "genesis"
