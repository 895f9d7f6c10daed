// Package zterrors provides structured error types with operator-facing
// remediation hints for the zero-trust admission core. These wrap the
// failure kinds named by the admission contract so every Deny carries a
// short, non-sensitive reason alongside a machine-readable code.
package zterrors

// Kind identifies one of the admission core's error kinds. It never embeds
// key material, signatures, or other sensitive bytes.
type Kind string

const (
	// KindIdentityInvalid covers a bad signature, expired identity, or
	// revoked user-id.
	KindIdentityInvalid Kind = "IDENTITY_INVALID"
	// KindPolicyDenied carries a policy-supplied deny reason.
	KindPolicyDenied Kind = "POLICY_DENIED"
	// KindRateLimited means a token bucket rejected the attempt.
	KindRateLimited Kind = "RATE_LIMITED"
	// KindCapacityExhausted covers both the global peer cap and sandbox
	// capacity exhaustion.
	KindCapacityExhausted Kind = "CAPACITY_EXHAUSTED"
	// KindSandboxUnavailable means no sandbox back-end was detected.
	KindSandboxUnavailable Kind = "SANDBOX_UNAVAILABLE"
	// KindSandboxFailed means a detected back-end returned an error.
	KindSandboxFailed Kind = "SANDBOX_FAILED"
	// KindAuditUnavailable means durable append cannot be guaranteed.
	KindAuditUnavailable Kind = "AUDIT_UNAVAILABLE"
	// KindTimeout covers admission and sandbox-allocation deadlines.
	KindTimeout Kind = "TIMEOUT"
)

// Suggestions holds default operator-facing remediation hints per kind,
// the same error-code-to-suggestion map shape used for AWS permission
// errors, generalized here to admission-core failure kinds.
var Suggestions = map[Kind]string{
	KindIdentityInvalid:    "Reissue the identity with a valid Ed25519 signature and a non-expired window.",
	KindPolicyDenied:       "Check the policy rule that matched; adjust the request's resources or attributes.",
	KindRateLimited:        "Back off and retry after the bucket's reset window.",
	KindCapacityExhausted:  "Wait for capacity to free up, or raise the configured peer/sandbox cap.",
	KindSandboxUnavailable: "No sandbox back-end is detected; install a container, micro-VM, or full-VM runtime.",
	KindSandboxFailed:      "Inspect the sandbox back-end logs; the allocation call itself failed.",
	KindAuditUnavailable:   "The audit log is degraded; check disk space and key-file permissions.",
	KindTimeout:            "The operation exceeded its deadline; check back-end and disk latency.",
}

// Error implements error with a code, a short operator-safe message, a
// suggestion, and optional context. The Context map is string-typed; the
// constructors store whatever strings they are given and do not inspect
// them, so keeping keys and signatures out of it is up to the call site.
type Error struct {
	kind       Kind
	message    string
	suggestion string
	context    map[string]string
	cause      error
}

// New creates an Error of the given kind with a message and optional
// context pairs (k1, v1, k2, v2, ...).
func New(kind Kind, message string, context ...string) *Error {
	e := &Error{
		kind:       kind,
		message:    message,
		suggestion: Suggestions[kind],
	}
	if len(context) > 0 {
		e.context = make(map[string]string, len(context)/2)
		for i := 0; i+1 < len(context); i += 2 {
			e.context[context[i]] = context[i+1]
		}
	}
	return e
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

func (e *Error) Error() string { return e.message }

// Unwrap returns the underlying cause, or nil.
func (e *Error) Unwrap() error { return e.cause }

// Code returns the error kind as a string, for logging and metrics labels.
func (e *Error) Code() string { return string(e.kind) }

// Kind returns the structured error kind.
func (e *Error) Kind() Kind { return e.kind }

// Suggestion returns the operator-facing remediation hint.
func (e *Error) Suggestion() string { return e.suggestion }

// Context returns additional non-sensitive context (e.g. peer-id, profile).
func (e *Error) Context() map[string]string { return e.context }

// Reason renders a short string suitable for an AccessDecision's Deny
// reason or an audit event's detail field. It never includes cause text
// that might carry raw bytes from a lower layer.
func (e *Error) Reason() string {
	if e.message != "" {
		return e.message
	}
	return string(e.kind)
}
