package trust

import (
	"errors"
	"sync"
	"time"
)

// ErrNotRegistered is returned by operations on an unknown user-id.
var ErrNotRegistered = errors.New("trust: identity not registered")

// EventSink receives audit-worthy registry events. internal/admission
// wires this to the audit log; tests can use a no-op or recording sink.
type EventSink interface {
	IdentityRegistered(userID string)
}

type noopSink struct{}

func (noopSink) IdentityRegistered(string) {}

// Registry is the Identity Registry: a keyed store of verified
// identities, trust scores, and connection/failure counters.
//
// Adapted from session.Store's shape (a single owner behind a lock,
// saturating counters, Touch-style hot-path updates), generalized
// from a DynamoDB-backed server-session table to an in-memory identity
// map. Lookups take the shared (read) lock; counter updates take the
// exclusive lock only across in-memory arithmetic, never across I/O.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	revoker Revoker
	sink    EventSink
	now     func() time.Time
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithRevoker overrides the default trust-threshold revocation predicate.
func WithRevoker(r Revoker) Option {
	return func(reg *Registry) { reg.revoker = r }
}

// WithEventSink wires an audit/event sink for identity_registered events.
func WithEventSink(sink EventSink) Option {
	return func(reg *Registry) { reg.sink = sink }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(reg *Registry) { reg.now = now }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	reg := &Registry{
		records: make(map[string]*Record),
		revoker: NewTrustThresholdRevoker(),
		sink:    noopSink{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// Verify reports whether id is currently valid: signature ok, not
// expired, and not revoked per the configured predicate. It reads the
// stored record only to compute the trust score the predicate is given,
// and never mutates its counters; callers that want the failure recorded
// must call RecordFailure themselves.
func (r *Registry) Verify(id Identity) bool {
	if !verifySignature(id) {
		return false
	}
	if !notExpired(id, r.now()) {
		return false
	}

	r.mu.RLock()
	score := r.trustLevelLocked(id.UserID)
	r.mu.RUnlock()
	return !r.revoker.Revoked(id.UserID, score)
}

// Register verifies id, checks it is not revoked, and on success inserts
// or replaces its record. A duplicate user-id only replaces the existing
// record if the new identity verifies and has a strictly later issued-at.
// The revocation check here (the same predicate Verify consults) is what
// stops an already-revoked user-id from laundering its trust score back
// to baseline simply by re-registering with a freshly issued identity.
func (r *Registry) Register(id Identity) (bool, error) {
	if !verifySignature(id) {
		return false, nil
	}
	now := r.now()
	if !notExpired(id, now) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	score := r.trustLevelLocked(id.UserID)
	if r.revoker.Revoked(id.UserID, score) {
		return false, nil
	}

	if existing, ok := r.records[id.UserID]; ok {
		if !id.IssuedAt.After(existing.Identity.IssuedAt) {
			return false, nil
		}
	}

	r.records[id.UserID] = &Record{
		Identity:   id,
		VerifiedAt: now,
		LastSeen:   now,
	}
	r.sink.IdentityRegistered(id.UserID)
	return true, nil
}

// TrustLevel computes the current TrustScore for userID. Returns the
// baseline score if the user-id has no record (unknown identities are
// never trusted above baseline).
func (r *Registry) TrustLevel(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trustLevelLocked(userID)
}

func (r *Registry) trustLevelLocked(userID string) int {
	rec, ok := r.records[userID]
	if !ok {
		return BaselineScore
	}
	return ScoreForRecord(rec, r.now())
}

// RecordConnection saturating-increments the connection counter and
// bumps last-seen. No-op (but not an error) for an unknown user-id, since
// the caller may be recording a connection concurrently with expiry.
func (r *Registry) RecordConnection(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return
	}
	rec.ConnectionCount = saturatingIncrement(rec.ConnectionCount)
	rec.LastSeen = r.now()
}

// RecordFailure saturating-increments the verification-failure counter.
func (r *Registry) RecordFailure(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return
	}
	rec.VerificationFailures = saturatingIncrement(rec.VerificationFailures)
	rec.LastSeen = r.now()
}

// Lookup returns a copy of the stored record for userID, if any.
func (r *Registry) Lookup(userID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Revoked reports whether userID is currently revoked under the
// configured predicate, independent of signature/expiry checks.
func (r *Registry) Revoked(userID string) bool {
	r.mu.RLock()
	score := r.trustLevelLocked(userID)
	r.mu.RUnlock()
	return r.revoker.Revoked(userID, score)
}

// Count returns the number of registered identities. Used by status
// reporting.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
