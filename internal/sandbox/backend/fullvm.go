package backend

import (
	"context"
	"os"
	"sync"

	"github.com/byteness/zerotrust-mesh/internal/sandbox"
)

// FullVM stands in for a full-virtualization / trusted-execution-environment
// runtime: the strongest, slowest isolation tier, above micro-VMs. Grounded
// on 0gfoundation's tee.Get (a mock-vs-real split gated by an environment
// variable), with only a stub implementation at this tier: Detect reports
// healthy only when the attestation socket path is configured; Create/
// Destroy track sandbox names in memory without talking to a real TEE.
type FullVM struct {
	attestationSock string

	mu     sync.Mutex
	active map[string]struct{}
}

// NewFullVM builds a FullVM back-end. attestationSock is the path to a
// local TEE attestation socket; an empty path makes Detect always report
// unhealthy.
func NewFullVM(attestationSock string) *FullVM {
	return &FullVM{attestationSock: attestationSock, active: make(map[string]struct{})}
}

func (f *FullVM) Tag() string { return "fullvm" }

// Detect reports healthy only when the attestation socket is configured
// and present on disk.
func (f *FullVM) Detect(_ context.Context) bool {
	if f.attestationSock == "" {
		return false
	}
	_, err := os.Stat(f.attestationSock)
	return err == nil
}

// Create records the sandbox as active. A full implementation would issue
// a TEE attestation request before provisioning the guest.
func (f *FullVM) Create(_ context.Context, name string, _ sandbox.Caps) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[name] = struct{}{}
	return nil
}

// Destroy removes the sandbox from the active set. Idempotent.
func (f *FullVM) Destroy(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, name)
	return nil
}
