// Package sandbox implements the Sandbox Manager: allocation and release
// of isolated execution environments for Privileged/Critical connections,
// backed by a pluggable, auto-detected back-end.
package sandbox

import (
	"regexp"
	"time"
)

// Level is the security level a sandbox is allocated for. Only Privileged
// and Critical levels ever reach the manager.
type Level int

const (
	LevelPrivileged Level = iota
	LevelCritical
)

// Caps are the resource caps assigned to a sandbox, chosen from its Level.
type Caps struct {
	CPUShares int
	MemoryMiB int
}

// CapsForLevel returns the fixed resource caps for a security level.
func CapsForLevel(level Level) Caps {
	switch level {
	case LevelCritical:
		return Caps{CPUShares: 1024, MemoryMiB: 1024}
	default:
		return Caps{CPUShares: 512, MemoryMiB: 512}
	}
}

// Sandbox is an allocated sandbox: its opaque id, caps, and the back-end
// tag that created it.
type Sandbox struct {
	ID         string
	Caps       Caps
	BackendTag string
	CreatedAt  time.Time
}

var nameSanitizerRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const maxSandboxNameLen = 64

// sanitizeName validates a candidate sandbox id against the allowed
// character set and length before it is ever handed to a back-end.
func sanitizeName(name string) bool {
	if len(name) == 0 || len(name) > maxSandboxNameLen {
		return false
	}
	return nameSanitizerRE.MatchString(name)
}
