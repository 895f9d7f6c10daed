package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/byteness/zerotrust-mesh/internal/zterrors"
)

// EventSink receives sandbox lifecycle events for the audit log.
type EventSink interface {
	SandboxCreated(sandboxID string, caps Caps)
	SandboxDestroyed(sandboxID string)
}

type noopSink struct{}

func (noopSink) SandboxCreated(string, Caps) {}
func (noopSink) SandboxDestroyed(string)     {}

// Manager is the Sandbox Manager: tracks the active set, enforces the
// configured capacity, and dispatches create/destroy to the detected
// back-end.
type Manager struct {
	mu       sync.Mutex
	active   map[string]Sandbox
	reserved int // in-flight allocations, counted against capacity before create completes
	capacity int
	backend  Backend // nil means "none" — Privileged/Critical refused
	sink     EventSink
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithEventSink wires an audit sink for sandbox_created/sandbox_destroyed.
func WithEventSink(sink EventSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// NewManager creates a Manager with the given capacity and detected
// back-end (nil if auto-detection found none).
func NewManager(capacity int, backend Backend, opts ...Option) *Manager {
	m := &Manager{
		active:   make(map[string]Sandbox),
		capacity: capacity,
		backend:  backend,
		sink:     noopSink{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HasCapacity reports whether the active count (including in-flight
// allocations) is below the configured capacity.
func (m *Manager) HasCapacity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)+m.reserved < m.capacity
}

// Allocate provisions a sandbox for the given level. On success it returns
// the new sandbox id. On back-end failure, or when no back-end is
// detected, it returns a zterrors.Error (KindSandboxUnavailable or
// KindSandboxFailed) and makes no change to the active set. Capacity is
// reserved before the back-end call and released on failure, so two
// concurrent allocations can never both succeed past a capacity of one.
func (m *Manager) Allocate(ctx context.Context, level Level) (string, error) {
	if m.backend == nil {
		return "", zterrors.New(zterrors.KindSandboxUnavailable, "no sandbox back-end detected")
	}

	m.mu.Lock()
	if len(m.active)+m.reserved >= m.capacity {
		m.mu.Unlock()
		return "", zterrors.New(zterrors.KindCapacityExhausted, "sandbox capacity exhausted")
	}
	m.reserved++
	m.mu.Unlock()

	caps := CapsForLevel(level)
	candidate, err := generateCandidateID()
	if err != nil {
		m.unreserve()
		return "", zterrors.Wrap(zterrors.KindSandboxFailed, err, "failed to generate sandbox id")
	}
	if !sanitizeName(candidate) {
		m.unreserve()
		return "", zterrors.New(zterrors.KindSandboxFailed, "generated sandbox id failed sanitizer")
	}

	if err := m.backend.Create(ctx, candidate, caps); err != nil {
		m.unreserve()
		return "", zterrors.Wrap(zterrors.KindSandboxFailed, err, "back-end create failed")
	}

	m.mu.Lock()
	m.reserved--
	m.active[candidate] = Sandbox{ID: candidate, Caps: caps, BackendTag: m.backend.Tag()}
	m.mu.Unlock()

	m.sink.SandboxCreated(candidate, caps)
	return candidate, nil
}

func (m *Manager) unreserve() {
	m.mu.Lock()
	m.reserved--
	m.mu.Unlock()
}

// Release tears down a sandbox and removes it from the active set. Release
// is idempotent: releasing an unknown or already-released id is not an
// error.
func (m *Manager) Release(ctx context.Context, sandboxID string) error {
	m.mu.Lock()
	_, ok := m.active[sandboxID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if m.backend != nil {
		if err := m.backend.Destroy(ctx, sandboxID); err != nil {
			return zterrors.Wrap(zterrors.KindSandboxFailed, err, "back-end destroy failed")
		}
	}

	m.mu.Lock()
	delete(m.active, sandboxID)
	m.mu.Unlock()

	m.sink.SandboxDestroyed(sandboxID)
	return nil
}

// ActiveCount returns the current number of allocated sandboxes.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func generateCandidateID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("sbx-%s", hex.EncodeToString(buf[:])), nil
}
