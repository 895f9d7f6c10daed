package admission

import (
	"context"
	"sync/atomic"

	"github.com/byteness/zerotrust-mesh/internal/auditlog"
	"github.com/byteness/zerotrust-mesh/internal/verifyloop"
)

// Snapshot implements verifyloop.Snapshotter: the connections currently
// admitted and not already being torn down.
func (c *Controller) Snapshot() []verifyloop.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]verifyloop.Connection, 0, len(c.conns))
	for peerID, s := range c.conns {
		if s.terminating {
			continue
		}
		out = append(out, verifyloop.Connection{PeerID: peerID, SandboxID: s.conn.SandboxID})
	}
	return out
}

// Verify implements verifyloop.Verifier: re-checks a previously admitted
// peer's identity against the registry using the identity recorded at
// admission time.
func (c *Controller) Verify(peerID string) bool {
	c.mu.Lock()
	s, ok := c.conns[peerID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return c.registry.Verify(toTrustIdentity(s.conn.Identity))
}

// MarkVerified implements verifyloop.Actions: bumps LastVerifiedAt on a
// passing re-verification. A session already marked terminating is left
// alone — the coordinator's terminal flag wins any race with the
// verifier.
func (c *Controller) MarkVerified(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.conns[peerID]
	if !ok || s.terminating {
		return
	}
	s.conn.LastVerifiedAt = c.now()
}

// RecordFailure implements verifyloop.Actions: increments the identity's
// verification-failure counter on a failed re-verification.
func (c *Controller) RecordFailure(peerID string) {
	c.mu.Lock()
	s, ok := c.conns[peerID]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.registry.RecordFailure(s.conn.Identity.UserID)
	atomic.AddInt64(&c.verificationFailures, 1)
}

// Terminate implements verifyloop.Actions: tears down a connection that
// failed continuous re-verification, going through the same terminal-flag
// gate as OnConnectionClosed so the two paths can never double-terminate
// the same peer.
func (c *Controller) Terminate(ctx context.Context, conn verifyloop.Connection, reason string) {
	c.mu.Lock()
	s, ok := c.conns[conn.PeerID]
	if !ok || s.terminating {
		c.mu.Unlock()
		return
	}
	s.terminating = true
	c.mu.Unlock()

	c.terminate(conn.PeerID, reason)
}

// VerificationPassed implements verifyloop.Actions.
func (c *Controller) VerificationPassed(peerID string) {
	c.auditBestEffort(context.Background(), auditlog.Record{
		EventKind: auditlog.EventVerificationPassed,
		PeerID:    peerID,
	})
}

// VerificationFailed implements verifyloop.Actions.
func (c *Controller) VerificationFailed(peerID, reason string) {
	c.auditBestEffort(context.Background(), auditlog.Record{
		EventKind: auditlog.EventVerificationFailed,
		PeerID:    peerID,
		Details:   map[string]string{"reason": reason},
	})
}

var (
	_ verifyloop.Snapshotter = (*Controller)(nil)
	_ verifyloop.Verifier    = (*Controller)(nil)
	_ verifyloop.Actions     = (*Controller)(nil)
)

// NewVerifyLoop builds a verifyloop.Loop wired against this Controller's
// own connection table, identity registry, and termination path.
func (c *Controller) NewVerifyLoop(opts ...verifyloop.Option) *verifyloop.Loop {
	return verifyloop.New(c, c, c, opts...)
}
