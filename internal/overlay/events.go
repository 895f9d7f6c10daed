// Package overlay defines the integration surface between the (external,
// out-of-scope) peer-to-peer overlay transport and the zero-trust
// admission core. The core never dials, discovers, or frames bytes on the
// wire itself — it only consumes a stream of connection and message
// events and returns decisions.
package overlay

import "time"

// ConnectionEvent is what the overlay transport hands the admission core
// on every inbound connection attempt.
type ConnectionEvent struct {
	RemoteAddr        string
	PeerID            string
	Identity          Identity
	RequestedResources []string
	Metadata          map[string]string
	Timestamp         time.Time
}

// Identity is the wire-level identity the overlay extracts from a
// handshake and hands to the admission core for verification. Field sizes
// match the wire format exactly (32B public key, 64B signature).
type Identity struct {
	UserID    string
	PublicKey [32]byte
	Signature [64]byte
	Attributes map[string]string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// MessageEvent is what the overlay hands the admission core on every
// inbound application message, before it is delivered upstream.
type MessageEvent struct {
	PeerID string
	Size   int
}

// Decision is the outcome the admission core hands back to the overlay.
// The overlay never sees raw errors — only one of these.
type Decision string

const (
	DecisionAllow             Decision = "allow"
	DecisionDeny              Decision = "deny"
	DecisionRequireSandbox    Decision = "require_sandbox"
	DecisionRequireMultiFactor Decision = "require_multi_factor"
	DecisionRateLimited       Decision = "rate_limited"
)

// AccessDecision carries the decision plus, on Allow/RequireSandbox, the
// established connection handle and, on Deny, an operator-safe reason.
type AccessDecision struct {
	Decision   Decision
	Reason     string
	Connection *SecureConnection
}

// MessageVerdict is returned from on_message.
type MessageVerdict string

const (
	MessageAccept MessageVerdict = "accept"
	MessageDrop   MessageVerdict = "drop"
)

// SecureConnection is the admission core's record of an admitted peer
// session, handed back to the overlay so it can tag outbound traffic and
// later request termination.
type SecureConnection struct {
	ConnectionID    string // RFC 4122 UUID
	PeerID          string
	Identity        Identity
	SecurityLevel   SecurityLevel
	SandboxID       string // empty unless sandboxed
	EstablishedAt   time.Time
	LastVerifiedAt  time.Time
}

// SecurityLevel classifies an admitted session's trust tier.
type SecurityLevel string

const (
	LevelUntrusted SecurityLevel = "untrusted"
	LevelBasic     SecurityLevel = "basic"
	LevelVerified  SecurityLevel = "verified"
	LevelPrivileged SecurityLevel = "privileged"
	LevelCritical  SecurityLevel = "critical"
)

// RequiresSandbox reports whether a level mandates sandbox isolation.
func (l SecurityLevel) RequiresSandbox() bool {
	return l == LevelPrivileged || l == LevelCritical
}

// rank gives a total order over levels so callers can compare monotonicity:
// raising a peer's trust score must never lower its security level.
var rank = map[SecurityLevel]int{
	LevelUntrusted:  0,
	LevelBasic:      1,
	LevelVerified:   2,
	LevelPrivileged: 3,
	LevelCritical:   4,
}

// Less reports whether l is strictly below other in the security-level
// ordering.
func (l SecurityLevel) Less(other SecurityLevel) bool {
	return rank[l] < rank[other]
}

// Admitter is the interface the overlay transport consumes. Implemented
// by internal/admission.Controller.
type Admitter interface {
	// OnConnectionEstablished evaluates and, if admitted, establishes a
	// SecureConnection for an inbound peer connection.
	OnConnectionEstablished(ev ConnectionEvent) AccessDecision
	// OnConnectionClosed tears down any SecureConnection and sandbox
	// associated with peerID, releasing its message-rate bucket.
	OnConnectionClosed(peerID string)
	// OnMessage checks an inbound message against the peer's rate bucket
	// and size ceiling.
	OnMessage(peerID string, size int) MessageVerdict
}
