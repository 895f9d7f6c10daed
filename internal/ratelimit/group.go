package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Group wires together the admission core's two keyed bucket groups: one
// for inbound connection attempts keyed by remote address, one for
// per-connection message traffic keyed by peer.
type Group struct {
	connections Limiter
	messages    Limiter
}

// NewGroup builds a Group from two already-constructed Limiters, letting
// callers mix in-memory and Redis-backed implementations per group.
func NewGroup(connections, messages Limiter) *Group {
	return &Group{connections: connections, messages: messages}
}

// NewMemoryGroup builds a Group entirely out of MemoryLimiters using the
// spec's default rates.
func NewMemoryGroup() (*Group, error) {
	conn, err := NewMemoryLimiter(DefaultConnectionConfig())
	if err != nil {
		return nil, fmt.Errorf("build connection limiter: %w", err)
	}
	msg, err := NewMemoryLimiter(DefaultMessageConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("build message limiter: %w", err)
	}
	return NewGroup(conn, msg), nil
}

// CheckConnection consumes one token from addr's connection bucket. A
// RateLimited decision means the caller must disconnect addr immediately
// and emit a rate_limited audit event.
func (g *Group) CheckConnection(ctx context.Context, addr string) (Decision, time.Duration, error) {
	return g.connections.Check(ctx, addr)
}

// ErrMessageTooLarge is returned by CheckMessage when size exceeds
// MaxMessageSize. This check never touches the message bucket: an
// oversized message is refused outright, not rate-limited.
var ErrMessageTooLarge = fmt.Errorf("message exceeds %d byte limit", MaxMessageSize)

// CheckMessage refuses any message over MaxMessageSize without consulting
// peer's bucket, then consumes one token from peer's message bucket.
func (g *Group) CheckMessage(ctx context.Context, peer string, size int) (Decision, time.Duration, error) {
	if size > MaxMessageSize {
		return RateLimited, 0, ErrMessageTooLarge
	}
	return g.messages.Check(ctx, peer)
}

// RemovePeer drops peer's message bucket. Called on disconnect so memory
// does not grow with churned peers. Connection buckets are keyed by
// address, not peer identity, and are left to the cleanup loop / window
// expiry since a peer's address may still be probing after disconnect.
func (g *Group) RemovePeer(peer string) {
	g.messages.Remove(peer)
}

// Close releases any resources held by the underlying limiters that
// support it (MemoryLimiter's background cleanup goroutine).
func (g *Group) Close() error {
	var firstErr error
	for _, l := range []Limiter{g.connections, g.messages} {
		if closer, ok := l.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
