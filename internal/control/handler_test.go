package control

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/byteness/zerotrust-mesh/internal/admission"
	"github.com/byteness/zerotrust-mesh/internal/auditlog"
	"github.com/byteness/zerotrust-mesh/internal/overlay"
	"github.com/byteness/zerotrust-mesh/internal/policy"
	"github.com/byteness/zerotrust-mesh/internal/ratelimit"
	"github.com/byteness/zerotrust-mesh/internal/sandbox"
	"github.com/byteness/zerotrust-mesh/internal/trust"
)

// fakeBackend always succeeds; sufficient for exercising the HTTP surface
// without a real sandbox runtime.
type fakeBackend struct{}

func (fakeBackend) Tag() string                                                   { return "fake" }
func (fakeBackend) Detect(ctx context.Context) bool                               { return true }
func (fakeBackend) Create(ctx context.Context, name string, c sandbox.Caps) error { return nil }
func (fakeBackend) Destroy(ctx context.Context, name string) error                { return nil }

func signedMessage(userID string, pub [32]byte, issuedAt, expiresAt time.Time) []byte {
	issued := issuedAt.UTC().Format(time.RFC3339)
	expires := expiresAt.UTC().Format(time.RFC3339)
	msg := make([]byte, 0, len(userID)+32+len(issued)+len(expires))
	msg = append(msg, []byte(userID)...)
	msg = append(msg, pub[:]...)
	msg = append(msg, []byte(issued)...)
	msg = append(msg, []byte(expires)...)
	return msg
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	registry := trust.NewRegistry()
	mgr := sandbox.NewManager(10, fakeBackend{})
	limiters, err := ratelimit.NewMemoryGroup()
	if err != nil {
		t.Fatalf("NewMemoryGroup: %v", err)
	}
	t.Cleanup(func() { limiters.Close() })

	dir := t.TempDir()
	ks, err := auditlog.OpenKeyStore(dir + "/audit.key")
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}
	log, err := auditlog.Open(dir, ks)
	if err != nil {
		t.Fatalf("Open audit log: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	controller := admission.NewController(registry, policy.DefaultPolicies(), mgr, limiters, log)
	zlog := zap.NewNop()
	return NewHandler(controller, registry, log, zlog)
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.Register(r.Group("/v1"))
	return r
}

func TestHandleStatus_ReportsZeroStateInitially(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ActiveSandboxes != 0 || resp.VerificationFailures != 0 {
		t.Fatalf("expected zero initial state, got %+v", resp)
	}
}

func TestHandleTestAdmission_AdmitsValidSyntheticIdentity(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	now := time.Now()
	issuedAt := now.Add(-time.Hour)
	expiresAt := now.Add(time.Hour)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pubArr [32]byte
	copy(pubArr[:], pub)
	sig := ed25519.Sign(priv, signedMessage("alice", pubArr, issuedAt, expiresAt))

	body, _ := json.Marshal(map[string]any{
		"remote_addr":   "10.0.0.1:1",
		"peer_id":       "peer-alice",
		"user_id":       "alice",
		"public_key_b64": base64.StdEncoding.EncodeToString(pub),
		"signature_b64":  base64.StdEncoding.EncodeToString(sig),
		"issued_at":      issuedAt,
		"expires_at":     expiresAt,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/test-admission", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp testAdmissionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Decision != overlay.DecisionAllow {
		t.Fatalf("expected allow, got %v (%s)", resp.Decision, resp.Reason)
	}
}

func TestHandleTestAdmission_RejectsMalformedPublicKey(t *testing.T) {
	h := newTestHandler(t)
	r := newTestRouter(h)

	body, _ := json.Marshal(map[string]any{
		"peer_id":        "peer-x",
		"user_id":        "x",
		"public_key_b64": "not-valid-base64!!",
		"signature_b64":  base64.StdEncoding.EncodeToString(make([]byte, 64)),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/test-admission", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
