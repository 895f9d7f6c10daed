package backend

import (
	"context"
	"errors"

	"github.com/byteness/zerotrust-mesh/internal/sandbox"
)

// ErrNoBackend is returned by None.Create: refused by design.
var ErrNoBackend = errors.New("sandbox: no back-end available")

// None is the fallback back-end when auto-detection finds nothing: it
// always reports healthy (so MultiBackend always terminates) but refuses
// every create, which in turn makes Privileged/Critical admissions fail.
type None struct{}

func (None) Tag() string { return "none" }

func (None) Detect(context.Context) bool { return true }

func (None) Create(context.Context, string, sandbox.Caps) error {
	return ErrNoBackend
}

func (None) Destroy(context.Context, string) error { return nil }
