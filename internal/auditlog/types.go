// Package auditlog implements the tamper-evident Audit Log: a
// hash-chained, AES-256-GCM-encrypted, line-oriented append log with
// rotation, a single serializing writer goroutine, and O(n) chain-break
// verification.
//
// Grounded on the audit package's SessionInfo/VerificationResult shape,
// generalized from CloudTrail session classification to a generic
// append-only security event, and on 0gfoundation's sealed_secret_store.go
// for the AES-256-GCM envelope (nonce‖ciphertext, 0600 file permissions).
package auditlog

import (
	"encoding/json"
	"time"
)

// EventKind identifies the category of an audit record.
type EventKind string

const (
	EventIdentityRegistered         EventKind = "identity_registered"
	EventIdentityRevoked            EventKind = "identity_revoked"
	EventIdentityVerificationPassed EventKind = "identity_verification_passed"
	EventIdentityVerificationFailed EventKind = "identity_verification_failed"
	EventPolicyDenied               EventKind = "policy_denied"
	EventSandboxCreated             EventKind = "sandbox_created"
	EventSandboxDestroyed           EventKind = "sandbox_destroyed"
	EventRateLimited                EventKind = "rate_limited"
	EventVerificationPassed         EventKind = "verification_passed"
	EventVerificationFailed         EventKind = "verification_failed"
	EventAccessGranted              EventKind = "access_granted"
	EventConnectionTerminated       EventKind = "connection_terminated"
	EventTimeout                    EventKind = "timeout"
)

// SecurityLevel mirrors the admission core's classification of a
// connection's required isolation, recorded alongside every event so a
// reader can audit policy outcomes without cross-referencing the policy
// engine.
type SecurityLevel string

const (
	SecurityLevelStandard   SecurityLevel = "standard"
	SecurityLevelPrivileged SecurityLevel = "privileged"
	SecurityLevelCritical   SecurityLevel = "critical"
)

// Record is one audit log entry. Field order here is the canonical JSON
// field order the chain hash is computed over: changing it would break
// verification of previously written logs, so it is fixed deliberately
// rather than left to struct-tag convention.
type Record struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventKind     EventKind         `json:"event_kind"`
	PeerID        string            `json:"peer_id,omitempty"`
	SecurityLevel SecurityLevel     `json:"security_level,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	PrevHash      string            `json:"prev_hash"`
}

// canonicalJSON renders r using the field order declared above. It is a
// plain json.Marshal, which emits struct fields in declaration order; the
// explicit method makes that dependency visible rather than implicit.
func (r Record) canonicalJSON() ([]byte, error) {
	return json.Marshal(r)
}
