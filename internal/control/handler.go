// Package control exposes the admission core's operational controls —
// status and test-admission — over HTTP. Both are read-only/diagnostic:
// neither mutates policy or trust state beyond what a synthesized
// test-admission request would itself cause (the same side effects a
// real admission attempt has).
//
// Grounded on 0gfoundation's internal/proxy.Handler: a narrow Handler
// struct wired against the components it fronts, with a Register method
// that mounts routes onto a *gin.RouterGroup rather than main() building
// routes inline.
package control

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byteness/zerotrust-mesh/internal/admission"
	"github.com/byteness/zerotrust-mesh/internal/auditlog"
	"github.com/byteness/zerotrust-mesh/internal/overlay"
	"github.com/byteness/zerotrust-mesh/internal/trust"
)

// Handler wires the operational controls onto a Gin engine.
type Handler struct {
	controller *admission.Controller
	registry   *trust.Registry
	audit      *auditlog.Log
	log        *zap.Logger
}

// NewHandler builds a Handler over the node's already-constructed
// components.
func NewHandler(controller *admission.Controller, registry *trust.Registry, audit *auditlog.Log, log *zap.Logger) *Handler {
	return &Handler{controller: controller, registry: registry, audit: audit, log: log}
}

// Register mounts the operational controls onto rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/status", h.handleStatus)
	rg.POST("/test-admission", h.handleTestAdmission)
}

// statusResponse is the status control's JSON shape: counts per security
// level, active sandboxes, verification failures, registered identities,
// and audit log stats. It carries no total of audit events emitted;
// audit.tail_events is only the length of the in-memory tail cache.
type statusResponse struct {
	ConnectionsByLevel   map[overlay.SecurityLevel]int `json:"connections_by_level"`
	ActiveSandboxes      int                            `json:"active_sandboxes"`
	VerificationFailures int64                          `json:"verification_failures"`
	RegisteredIdentities int                             `json:"registered_identities"`
	Audit                auditStatus                     `json:"audit"`
}

type auditStatus struct {
	ActiveFileSize int64 `json:"active_file_size"`
	Rotations      int   `json:"rotations"`
	ReadOnly       bool  `json:"read_only"`
	TailEvents     int   `json:"tail_events"`
}

func (h *Handler) handleStatus(c *gin.Context) {
	stats := h.controller.Stats()
	c.JSON(http.StatusOK, statusResponse{
		ConnectionsByLevel:   stats.ConnectionsByLevel,
		ActiveSandboxes:      stats.ActiveSandboxes,
		VerificationFailures: stats.VerificationFailures,
		RegisteredIdentities: h.registry.Count(),
		Audit: auditStatus{
			ActiveFileSize: stats.Audit.ActiveFileSize,
			Rotations:      stats.Audit.Rotations,
			ReadOnly:       stats.Audit.ReadOnly,
			TailEvents:     stats.Audit.TailEvents,
		},
	})
}

// testAdmissionRequest synthesizes an overlay.ConnectionEvent for
// diagnostic purposes. Keys are base64-std-encoded so the fixed-size
// wire arrays round-trip over JSON; this endpoint never terminates a
// real peer connection, it only runs the same pipeline a real one would.
type testAdmissionRequest struct {
	RemoteAddr         string            `json:"remote_addr"`
	PeerID             string            `json:"peer_id"`
	UserID             string            `json:"user_id"`
	PublicKeyB64       string            `json:"public_key_b64"`
	SignatureB64       string            `json:"signature_b64"`
	IssuedAt           time.Time         `json:"issued_at"`
	ExpiresAt          time.Time         `json:"expires_at"`
	Attributes         map[string]string `json:"attributes"`
	RequestedResources []string          `json:"requested_resources"`
}

type testAdmissionResponse struct {
	Decision      overlay.Decision      `json:"decision"`
	Reason        string                `json:"reason,omitempty"`
	ConnectionID  string                `json:"connection_id,omitempty"`
	SecurityLevel overlay.SecurityLevel `json:"security_level,omitempty"`
	SandboxID     string                `json:"sandbox_id,omitempty"`
}

func (h *Handler) handleTestAdmission(c *gin.Context) {
	var req testAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	pub, err := base64.StdEncoding.DecodeString(req.PublicKeyB64)
	if err != nil || len(pub) != 32 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "public_key_b64 must decode to 32 bytes"})
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.SignatureB64)
	if err != nil || len(sig) != 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature_b64 must decode to 64 bytes"})
		return
	}

	var pubArr [32]byte
	copy(pubArr[:], pub)
	var sigArr [64]byte
	copy(sigArr[:], sig)

	ev := overlay.ConnectionEvent{
		RemoteAddr: req.RemoteAddr,
		PeerID:     req.PeerID,
		Identity: overlay.Identity{
			UserID:     req.UserID,
			PublicKey:  pubArr,
			Signature:  sigArr,
			Attributes: req.Attributes,
			IssuedAt:   req.IssuedAt,
			ExpiresAt:  req.ExpiresAt,
		},
		RequestedResources: req.RequestedResources,
		Timestamp:          time.Now(),
	}

	h.log.Info("test-admission invoked", zap.String("peer_id", req.PeerID), zap.String("user_id", req.UserID))
	decision := h.controller.OnConnectionEstablished(ev)

	resp := testAdmissionResponse{Decision: decision.Decision, Reason: decision.Reason}
	if decision.Connection != nil {
		resp.ConnectionID = decision.Connection.ConnectionID
		resp.SecurityLevel = decision.Connection.SecurityLevel
		resp.SandboxID = decision.Connection.SandboxID
	}
	c.JSON(http.StatusOK, resp)
}
