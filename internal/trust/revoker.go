package trust

import (
	"sync"
	"time"
)

// Revoker is the pluggable revocation predicate: revocation is left as a
// predicate behind an interface so a future distributed revocation list
// can be substituted without touching admission. Registry.Revoked
// delegates here.
type Revoker interface {
	// Revoked reports whether userID must be treated as revoked, given
	// its current trust score (the reference predicate) or whatever
	// external signal the implementation consults.
	Revoked(userID string, score int) bool
}

// TrustThresholdRevoker is the reference implementation: user-ids with
// trust < threshold are revoked. The default threshold is 10.
type TrustThresholdRevoker struct {
	Threshold int
}

// NewTrustThresholdRevoker builds the default revoker (threshold 10).
func NewTrustThresholdRevoker() *TrustThresholdRevoker {
	return &TrustThresholdRevoker{Threshold: 10}
}

func (r *TrustThresholdRevoker) Revoked(_ string, score int) bool {
	return score < r.Threshold
}

// StaticRevoker revokes an explicit, caller-maintained set of user-ids
// regardless of score. Useful in tests and as a building block for
// composing with TrustThresholdRevoker.
type StaticRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewStaticRevoker creates an empty StaticRevoker.
func NewStaticRevoker() *StaticRevoker {
	return &StaticRevoker{revoked: make(map[string]time.Time)}
}

func (s *StaticRevoker) Revoke(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[userID] = time.Now()
}

func (s *StaticRevoker) Revoked(userID string, _ int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[userID]
	return ok
}
