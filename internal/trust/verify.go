package trust

import (
	"crypto/ed25519"
	"time"
)

// signedMessage reproduces the exact byte concatenation required for
// Ed25519 verification: user-id ‖ public-key ‖ issued-at (RFC3339) ‖
// expires-at (RFC3339).
func signedMessage(userID string, publicKey [PublicKeySize]byte, issuedAt, expiresAt time.Time) []byte {
	issued := issuedAt.UTC().Format(time.RFC3339)
	expires := expiresAt.UTC().Format(time.RFC3339)

	msg := make([]byte, 0, len(userID)+PublicKeySize+len(issued)+len(expires))
	msg = append(msg, []byte(userID)...)
	msg = append(msg, publicKey[:]...)
	msg = append(msg, []byte(issued)...)
	msg = append(msg, []byte(expires)...)
	return msg
}

// verifySignature checks the Ed25519 signature over the identity's exact
// wire concatenation. A public key or signature of the wrong length is a
// verification failure, never a length-only acceptance.
func verifySignature(id Identity) bool {
	if len(id.PublicKey) != PublicKeySize || len(id.Signature) != SignatureSize {
		return false
	}
	msg := signedMessage(id.UserID, id.PublicKey, id.IssuedAt, id.ExpiresAt)
	return ed25519.Verify(id.PublicKey[:], msg, id.Signature[:])
}

// notExpired reports whether now is strictly before the identity's
// expires-at.
func notExpired(id Identity, now time.Time) bool {
	return now.Before(id.ExpiresAt)
}
