// Package admission implements the Admission Controller: the hub that
// orchestrates the Identity Registry, Policy Engine, Sandbox Manager, Rate
// Limiter, and Audit Log to evaluate and establish SecureConnections for
// inbound peer connections.
package admission

import (
	"strings"

	"github.com/byteness/zerotrust-mesh/internal/auditlog"
	"github.com/byteness/zerotrust-mesh/internal/overlay"
)

// containsCriticalResource matches the policy engine's resource/contains
// semantics: true iff any requested resource string contains "critical".
func containsCriticalResource(resources []string) bool {
	for _, r := range resources {
		if strings.Contains(r, "critical") {
			return true
		}
	}
	return false
}

// ClassifySecurityLevel derives a SecurityLevel from a trust score and the
// requested resources, in declaration order with the first match winning.
func ClassifySecurityLevel(trustScore int, resources []string) overlay.SecurityLevel {
	switch {
	case trustScore <= 30:
		return overlay.LevelUntrusted
	case trustScore <= 50:
		return overlay.LevelBasic
	case trustScore <= 70:
		return overlay.LevelVerified
	case trustScore <= 90 || containsCriticalResource(resources):
		return overlay.LevelPrivileged
	default:
		return overlay.LevelCritical
	}
}

// auditSecurityLevel collapses the overlay's five-tier SecurityLevel to
// the audit log's three-tier classification (Untrusted/Basic/Verified all
// read as "standard" for audit purposes; only the two sandboxed tiers get
// their own value).
func auditSecurityLevel(level overlay.SecurityLevel) auditlog.SecurityLevel {
	switch level {
	case overlay.LevelPrivileged:
		return auditlog.SecurityLevelPrivileged
	case overlay.LevelCritical:
		return auditlog.SecurityLevelCritical
	default:
		return auditlog.SecurityLevelStandard
	}
}
