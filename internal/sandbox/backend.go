package sandbox

import "context"

// Backend is the uniform contract every sandbox back-end implements.
// What was dynamic dispatch across container/micro-VM/full-VM runtimes in
// the original design becomes a single tagged-variant interface: selecting
// a back-end at startup is just picking which Backend value Detect()
// returns.
type Backend interface {
	// Tag names the back-end for logging and the Sandbox.BackendTag field.
	Tag() string
	// Detect reports whether this back-end's runtime is available and
	// healthy. Called once at startup by MultiBackend.
	Detect(ctx context.Context) bool
	// Create provisions a sandbox with the given sanitized name and caps.
	Create(ctx context.Context, name string, caps Caps) error
	// Destroy tears down a previously created sandbox. Must be safe to
	// call on an id that was never created (idempotent release).
	Destroy(ctx context.Context, name string) error
}

// MultiBackend composes back-ends and selects the first whose Detect call
// reports healthy, in preference order: container, then micro-VM, then
// full-virtualization, then None. Tries each candidate in order and
// sticks with the first successful detection, rather than re-probing on
// every call.
type MultiBackend struct {
	candidates []Backend
	active     Backend
}

// NewMultiBackend builds a MultiBackend over the given candidates, tried
// in the given order. Nil candidates are filtered out.
func NewMultiBackend(candidates ...Backend) *MultiBackend {
	filtered := make([]Backend, 0, len(candidates))
	for _, c := range candidates {
		if c != nil {
			filtered = append(filtered, c)
		}
	}
	return &MultiBackend{candidates: filtered}
}

// Detect runs each candidate's Detect in order and latches the first
// healthy one as active. Returns the selected back-end's tag, or "none" if
// nothing detected (the caller should fall back to the None back-end).
func (m *MultiBackend) Detect(ctx context.Context) string {
	for _, c := range m.candidates {
		if c.Detect(ctx) {
			m.active = c
			return c.Tag()
		}
	}
	m.active = nil
	return "none"
}

// Active returns the back-end selected by the last Detect call, or nil.
func (m *MultiBackend) Active() Backend {
	return m.active
}
