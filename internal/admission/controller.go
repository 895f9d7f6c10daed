package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/byteness/zerotrust-mesh/internal/auditlog"
	"github.com/byteness/zerotrust-mesh/internal/overlay"
	"github.com/byteness/zerotrust-mesh/internal/policy"
	"github.com/byteness/zerotrust-mesh/internal/ratelimit"
	"github.com/byteness/zerotrust-mesh/internal/sandbox"
	"github.com/byteness/zerotrust-mesh/internal/trust"
)

// DefaultMaxPeers is the global admitted-peer cap.
const DefaultMaxPeers = 1000

// DefaultVerifyWorkers bounds how many identity verifications the
// coordinator dispatches concurrently, so one slow verification cannot
// stall admission of unrelated peers.
const DefaultVerifyWorkers = 32

// session is the coordinator's bookkeeping for one admitted peer: the
// SecureConnection handed to the overlay plus the terminal flag the
// continuous verifier checks before mutating a connection already being
// torn down.
type session struct {
	conn        overlay.SecureConnection
	terminating bool
}

// Controller is the Admission Controller: the hub that wires the
// Identity Registry, Policy Engine, Sandbox Manager, Rate Limiter, and
// Audit Log together to evaluate and establish SecureConnections.
//
// Adapted from the server package's shape: a single coordinator type
// owning a connection table behind a lock, dispatching per-connection
// work to a bounded pool rather than letting a slow call stall the
// accept loop.
type Controller struct {
	registry   *trust.Registry
	policies   []policy.Policy
	sandboxMgr *sandbox.Manager
	limiters   *ratelimit.Group
	audit      *auditlog.Log

	maxPeers int
	workers  chan struct{}

	establishTimeout time.Duration
	sandboxTimeout   time.Duration

	now func() time.Time

	mu    sync.Mutex
	conns map[string]*session // keyed by PeerID

	verificationFailures int64 // atomic; admission-time + continuous-verify failures
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithMaxPeers overrides DefaultMaxPeers.
func WithMaxPeers(n int) Option {
	return func(c *Controller) { c.maxPeers = n }
}

// WithVerifyWorkers overrides DefaultVerifyWorkers.
func WithVerifyWorkers(n int) Option {
	return func(c *Controller) { c.workers = make(chan struct{}, n) }
}

// WithEstablishTimeout bounds how long OnConnectionEstablished may spend
// on the identity-verify/policy/sandbox pipeline before it is treated as
// a timeout failure.
func WithEstablishTimeout(d time.Duration) Option {
	return func(c *Controller) { c.establishTimeout = d }
}

// WithSandboxTimeout bounds a single sandbox allocation call.
func WithSandboxTimeout(d time.Duration) Option {
	return func(c *Controller) { c.sandboxTimeout = d }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController wires a Controller from its already-constructed leaf
// components.
func NewController(registry *trust.Registry, policies []policy.Policy, sandboxMgr *sandbox.Manager, limiters *ratelimit.Group, audit *auditlog.Log, opts ...Option) *Controller {
	c := &Controller{
		registry:         registry,
		policies:         policies,
		sandboxMgr:       sandboxMgr,
		limiters:         limiters,
		audit:            audit,
		maxPeers:         DefaultMaxPeers,
		workers:          make(chan struct{}, DefaultVerifyWorkers),
		establishTimeout: 10 * time.Second,
		sandboxTimeout:   5 * time.Second,
		now:              time.Now,
		conns:            make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sandboxLevelFor(level overlay.SecurityLevel) sandbox.Level {
	if level == overlay.LevelCritical {
		return sandbox.LevelCritical
	}
	return sandbox.LevelPrivileged
}

// peerCount returns the number of currently tracked sessions.
func (c *Controller) peerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

func deny(reason string) overlay.AccessDecision {
	return overlay.AccessDecision{Decision: overlay.DecisionDeny, Reason: reason}
}

// auditBestEffort appends an audit record, swallowing the error: a failed
// audit append during a path that is already returning a Deny must not
// itself become the visible failure mode, but is still worth surfacing
// to an operator via the degraded-log status, not a dropped connection.
func (c *Controller) auditBestEffort(ctx context.Context, rec auditlog.Record) {
	if c.audit == nil {
		return
	}
	_ = c.audit.Append(ctx, rec)
}

// OnConnectionEstablished runs the admission pre-check pipeline, in
// order: connection rate limit, global peer cap, identity verification,
// policy evaluation, security-level classification, sandbox gating, then
// registration.
func (c *Controller) OnConnectionEstablished(ev overlay.ConnectionEvent) overlay.AccessDecision {
	ctx, cancel := context.WithTimeout(context.Background(), c.establishTimeout)
	defer cancel()

	// 1. rate limiter on the remote address.
	decision, _, err := c.limiters.CheckConnection(ctx, ev.RemoteAddr)
	if err != nil {
		return deny("rate limiter unavailable")
	}
	if decision == ratelimit.RateLimited {
		c.auditBestEffort(ctx, auditlog.Record{
			EventKind: auditlog.EventRateLimited,
			PeerID:    ev.PeerID,
			Details:   map[string]string{"remote_addr": ev.RemoteAddr},
		})
		return overlay.AccessDecision{Decision: overlay.DecisionRateLimited, Reason: "connection rate limited"}
	}

	// 2. global peer cap.
	if c.peerCount() >= c.maxPeers {
		return deny("too many peers")
	}

	// 3. identity registry verify() + register(). Registering on every
	// successful verify is what lets RecordConnection/RecordFailure find a
	// record to update for a real peer; Register itself is idempotent for
	// an already-registered, not-newer identity (it just declines the
	// overwrite) so re-connecting with the same long-lived credential
	// never fails here.
	identity := toTrustIdentity(ev.Identity)
	if !c.verifyIdentity(identity) {
		c.registry.RecordFailure(identity.UserID)
		atomic.AddInt64(&c.verificationFailures, 1)
		c.auditBestEffort(ctx, auditlog.Record{
			EventKind: auditlog.EventIdentityVerificationFailed,
			PeerID:    ev.PeerID,
			Details:   map[string]string{"user_id": identity.UserID},
		})
		return deny("identity verification failed")
	}
	if _, err := c.registry.Register(identity); err != nil {
		c.registry.RecordFailure(identity.UserID)
		atomic.AddInt64(&c.verificationFailures, 1)
		c.auditBestEffort(ctx, auditlog.Record{
			EventKind: auditlog.EventIdentityVerificationFailed,
			PeerID:    ev.PeerID,
			Details:   map[string]string{"user_id": identity.UserID},
		})
		return deny("identity registration failed")
	}
	c.auditBestEffort(ctx, auditlog.Record{
		EventKind: auditlog.EventIdentityVerificationPassed,
		PeerID:    ev.PeerID,
		Details:   map[string]string{"user_id": identity.UserID},
	})

	// 4. policy engine evaluate().
	trustScore := c.registry.TrustLevel(identity.UserID)
	req := policy.Request{
		Attributes: identity.Attributes,
		Resources:  ev.RequestedResources,
		TrustLevel: trustScore,
	}
	action := policy.Evaluate(c.policies, req)

	if action.Kind == policy.ActionDeny {
		c.auditBestEffort(ctx, auditlog.Record{
			EventKind: auditlog.EventPolicyDenied,
			PeerID:    ev.PeerID,
			Details:   map[string]string{"reason": action.Reason},
		})
		return deny(action.Reason)
	}
	if action.Kind == policy.ActionRequireMultiFactor {
		return overlay.AccessDecision{Decision: overlay.DecisionRequireMultiFactor, Reason: "multi-factor verification required"}
	}

	// 5. classify security level from trust score + resources.
	level := ClassifySecurityLevel(trustScore, ev.RequestedResources)

	// 6. sandbox gating.
	needsSandbox := level.RequiresSandbox() || action.Kind == policy.ActionRequireSandbox
	var sandboxID string
	if needsSandbox {
		// A policy-required sandbox runs the connection at no less than
		// Privileged, so sandbox presence always matches the level.
		if !level.RequiresSandbox() {
			level = overlay.LevelPrivileged
		}
		if !c.sandboxMgr.HasCapacity() {
			return deny("no sandbox capacity")
		}
		sbCtx, sbCancel := context.WithTimeout(ctx, c.sandboxTimeout)
		id, err := c.sandboxMgr.Allocate(sbCtx, sandboxLevelFor(level))
		sbCancel()
		if err != nil {
			return deny("sandbox failed")
		}
		sandboxID = id
	}

	// Connection establishment carries a deadline (establishTimeout); if
	// it has already expired by the time the pipeline reaches
	// registration, the attempt is forced closed rather than admitted
	// with a stale pre-check.
	if ctx.Err() != nil {
		if sandboxID != "" {
			_ = c.sandboxMgr.Release(context.Background(), sandboxID)
		}
		c.auditBestEffort(context.Background(), auditlog.Record{
			EventKind: auditlog.EventTimeout,
			PeerID:    ev.PeerID,
			Details:   map[string]string{"stage": "establish"},
		})
		return deny("connection establishment timed out")
	}

	// 7. register a SecureConnection, record_connection, audit access
	// granted. A persistently degraded audit log denies any admission at
	// Privileged/Critical (sandbox released, nothing registered); lower
	// levels are still admitted on a best-effort basis, per the escalation
	// rule in the error-handling design.
	connID := uuid.NewString()
	conn := overlay.SecureConnection{
		ConnectionID:   connID,
		PeerID:         ev.PeerID,
		Identity:       ev.Identity,
		SecurityLevel:  level,
		SandboxID:      sandboxID,
		EstablishedAt:  c.now(),
		LastVerifiedAt: c.now(),
	}

	details := map[string]string{"connection_id": connID, "level": string(level)}
	if sandboxID != "" {
		details["sandbox_id"] = sandboxID
	}
	if c.audit != nil {
		auditOK := true
		if degraded, _ := c.audit.Degraded(); degraded {
			auditOK = false
		} else if err := c.audit.Append(ctx, auditlog.Record{
			EventKind:     auditlog.EventAccessGranted,
			PeerID:        ev.PeerID,
			SecurityLevel: auditSecurityLevel(level),
			Details:       details,
		}); err != nil {
			auditOK = false
		}
		if !auditOK && level.RequiresSandbox() {
			if sandboxID != "" {
				_ = c.sandboxMgr.Release(context.Background(), sandboxID)
			}
			return deny("audit degraded")
		}
	}

	c.mu.Lock()
	c.conns[ev.PeerID] = &session{conn: conn}
	c.mu.Unlock()

	c.registry.RecordConnection(identity.UserID)

	return overlay.AccessDecision{Decision: overlay.DecisionAllow, Connection: &conn}
}

// verifyIdentity dispatches to the registry through the bounded worker
// semaphore so a slow verification never stalls other admissions.
func (c *Controller) verifyIdentity(id trust.Identity) bool {
	c.workers <- struct{}{}
	defer func() { <-c.workers }()
	return c.registry.Verify(id)
}

// OnConnectionClosed tears down any SecureConnection and sandbox
// associated with peerID. Idempotent: closing an unknown or
// already-terminating peer is a no-op.
func (c *Controller) OnConnectionClosed(peerID string) {
	c.mu.Lock()
	s, ok := c.conns[peerID]
	if !ok || s.terminating {
		c.mu.Unlock()
		return
	}
	s.terminating = true
	c.mu.Unlock()

	c.terminate(peerID, "peer closed")
}

// terminate releases the sandbox (if any), drops the peer's message
// bucket, emits exactly one connection_terminated event, and removes the
// session from the table.
func (c *Controller) terminate(peerID, reason string) {
	c.mu.Lock()
	s, ok := c.conns[peerID]
	c.mu.Unlock()
	if !ok {
		return
	}

	ctx := context.Background()
	if s.conn.SandboxID != "" {
		_ = c.sandboxMgr.Release(ctx, s.conn.SandboxID)
	}
	c.limiters.RemovePeer(peerID)
	c.auditBestEffort(ctx, auditlog.Record{
		EventKind:     auditlog.EventConnectionTerminated,
		PeerID:        peerID,
		SecurityLevel: auditSecurityLevel(s.conn.SecurityLevel),
		Details:       map[string]string{"connection_id": s.conn.ConnectionID, "reason": reason},
	})

	c.mu.Lock()
	delete(c.conns, peerID)
	c.mu.Unlock()
}

// OnMessage enforces the peer's message-rate bucket and the size
// ceiling.
func (c *Controller) OnMessage(peerID string, size int) overlay.MessageVerdict {
	decision, _, err := c.limiters.CheckMessage(context.Background(), peerID, size)
	if err != nil || decision == ratelimit.RateLimited {
		return overlay.MessageDrop
	}
	return overlay.MessageAccept
}

// Stats is the status operational control's response shape: counts per
// security level, active sandboxes, total verification failures, and the
// audit log's own rotation/degradation state.
type Stats struct {
	ConnectionsByLevel   map[overlay.SecurityLevel]int
	ActiveSandboxes      int
	VerificationFailures int64
	Audit                auditlog.Stats
}

// Stats reports a point-in-time snapshot of the controller's state, for
// the status operational control.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	byLevel := make(map[overlay.SecurityLevel]int)
	for _, s := range c.conns {
		byLevel[s.conn.SecurityLevel]++
	}
	c.mu.Unlock()

	stats := Stats{
		ConnectionsByLevel:   byLevel,
		ActiveSandboxes:      c.sandboxMgr.ActiveCount(),
		VerificationFailures: atomic.LoadInt64(&c.verificationFailures),
	}
	if c.audit != nil {
		stats.Audit = c.audit.Stats()
	}
	return stats
}

var _ overlay.Admitter = (*Controller)(nil)
