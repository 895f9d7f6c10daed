// Package trust implements the Identity Registry: a keyed store of
// verified identities, trust scores, and connection/failure counters.
//
// Grounded on the identity package's SourceIdentity stamping and strict
// format validation, and the session package's single-owner registry
// behind a reader/writer lock with saturating counters, generalized from
// AWS STS SourceIdentity strings to an Ed25519-signed Identity.
package trust

import (
	"math"
	"time"
)

// PublicKeySize and SignatureSize match the wire format exactly.
const (
	PublicKeySize = 32
	SignatureSize = 64
	MaxUserIDSize = 256
)

// Identity is a caller-supplied, Ed25519-signed claim of a stable user-id.
// The signature covers user-id ‖ public-key ‖ issued-at (RFC3339) ‖
// expires-at (RFC3339).
type Identity struct {
	UserID     string
	PublicKey  [PublicKeySize]byte
	Signature  [SignatureSize]byte
	Attributes map[string]string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Record is what the registry stores per user-id: the last-registered
// Identity plus monotonic, saturating counters.
type Record struct {
	Identity               Identity
	VerifiedAt             time.Time
	LastSeen               time.Time
	ConnectionCount        int64
	VerificationFailures   int64
}

// saturatingIncrement adds 1 without wrapping past math.MaxInt64.
func saturatingIncrement(n int64) int64 {
	if n == math.MaxInt64 {
		return n
	}
	return n + 1
}
