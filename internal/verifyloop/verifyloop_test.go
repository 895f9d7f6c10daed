package verifyloop

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	mu    sync.Mutex
	conns []Connection
}

func (f *fakeSnapshotter) Snapshot() []Connection {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Connection, len(f.conns))
	copy(out, f.conns)
	return out
}

type fakeVerifier struct {
	mu    sync.Mutex
	valid map[string]bool
}

func (f *fakeVerifier) Verify(peerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid[peerID]
}

type recordingActions struct {
	mu         sync.Mutex
	verified   []string
	failed     []string
	terminated []Connection
	passed     []string
	failedEvt  []string
}

func (r *recordingActions) MarkVerified(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified = append(r.verified, peerID)
}

func (r *recordingActions) RecordFailure(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, peerID)
}

func (r *recordingActions) Terminate(_ context.Context, conn Connection, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated = append(r.terminated, conn)
}

func (r *recordingActions) VerificationPassed(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passed = append(r.passed, peerID)
}

func (r *recordingActions) VerificationFailed(peerID, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedEvt = append(r.failedEvt, peerID)
}

func TestRunOnce_PassingConnectionMarkedVerified(t *testing.T) {
	snap := &fakeSnapshotter{conns: []Connection{{PeerID: "peer-a"}}}
	verifier := &fakeVerifier{valid: map[string]bool{"peer-a": true}}
	actions := &recordingActions{}

	l := New(snap, verifier, actions)
	l.RunOnce(context.Background())

	if len(actions.verified) != 1 || actions.verified[0] != "peer-a" {
		t.Fatalf("expected peer-a marked verified, got %v", actions.verified)
	}
	if len(actions.passed) != 1 {
		t.Fatalf("expected one verification_passed event, got %v", actions.passed)
	}
	if len(actions.terminated) != 0 {
		t.Fatalf("expected no termination for a passing connection, got %v", actions.terminated)
	}
}

func TestRunOnce_FailingConnectionTerminated(t *testing.T) {
	snap := &fakeSnapshotter{conns: []Connection{{PeerID: "peer-b", SandboxID: "sbx-1"}}}
	verifier := &fakeVerifier{valid: map[string]bool{"peer-b": false}}
	actions := &recordingActions{}

	l := New(snap, verifier, actions)
	l.RunOnce(context.Background())

	if len(actions.failed) != 1 || actions.failed[0] != "peer-b" {
		t.Fatalf("expected peer-b's failure counter incremented, got %v", actions.failed)
	}
	if len(actions.failedEvt) != 1 {
		t.Fatalf("expected one verification_failed event, got %v", actions.failedEvt)
	}
	if len(actions.terminated) != 1 || actions.terminated[0].PeerID != "peer-b" {
		t.Fatalf("expected peer-b terminated, got %v", actions.terminated)
	}
	if actions.terminated[0].SandboxID != "sbx-1" {
		t.Error("expected the terminated connection to carry its sandbox id for release")
	}
}

func TestRunOnce_MultipleConnectionsEachEvaluatedIndependently(t *testing.T) {
	snap := &fakeSnapshotter{conns: []Connection{{PeerID: "ok"}, {PeerID: "bad"}}}
	verifier := &fakeVerifier{valid: map[string]bool{"ok": true, "bad": false}}
	actions := &recordingActions{}

	l := New(snap, verifier, actions)
	l.RunOnce(context.Background())

	if len(actions.verified) != 1 || len(actions.terminated) != 1 {
		t.Fatalf("expected exactly one of each outcome, got verified=%v terminated=%v", actions.verified, actions.terminated)
	}
}

func TestLoop_StartStopRunsAtLeastOncePerTick(t *testing.T) {
	snap := &fakeSnapshotter{conns: []Connection{{PeerID: "peer-c"}}}
	verifier := &fakeVerifier{valid: map[string]bool{"peer-c": true}}
	actions := &recordingActions{}

	l := New(snap, verifier, actions, WithInterval(10*time.Millisecond))
	l.Start()
	defer l.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !l.LastPass().IsZero() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected at least one tick-driven verification pass within the deadline")
}

func TestLoop_StartIsIdempotent(t *testing.T) {
	snap := &fakeSnapshotter{}
	verifier := &fakeVerifier{valid: map[string]bool{}}
	actions := &recordingActions{}

	l := New(snap, verifier, actions, WithInterval(time.Hour))
	l.Start()
	l.Start()
	l.Stop()
}
