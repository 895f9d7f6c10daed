package admission

import (
	"github.com/byteness/zerotrust-mesh/internal/overlay"
	"github.com/byteness/zerotrust-mesh/internal/trust"
)

// toTrustIdentity converts the overlay's wire-level Identity to the
// registry's Identity. The two types are structurally identical (same
// field sizes, same signed-message layout) but kept distinct so that
// internal/trust never imports internal/overlay.
func toTrustIdentity(id overlay.Identity) trust.Identity {
	return trust.Identity{
		UserID:     id.UserID,
		PublicKey:  id.PublicKey,
		Signature:  id.Signature,
		Attributes: id.Attributes,
		IssuedAt:   id.IssuedAt,
		ExpiresAt:  id.ExpiresAt,
	}
}
