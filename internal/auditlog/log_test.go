package auditlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var errNoSpace = errors.New("no space left on device")

func newTestLog(t *testing.T, opts ...Option) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	ks := newFileKeyStore(filepath.Join(dir, "audit.key"))
	l, err := Open(filepath.Join(dir, "log"), ks, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, filepath.Join(dir, "log")
}

func TestLog_AppendPersistsAndChains(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := l.Append(ctx, Record{
			EventKind: EventAccessGranted,
			PeerID:    "peer-1",
		})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	stats := l.Stats()
	if stats.TailEvents != 3 {
		t.Fatalf("expected 3 tail events, got %d", stats.TailEvents)
	}
	tail := l.Tail()
	if len(tail) != 3 {
		t.Fatalf("expected Tail() to return 3 records, got %d", len(tail))
	}
	// Each record's prev-hash must differ as the chain advances (not all
	// genesis), confirming the chain field is actually being threaded.
	if tail[0].PrevHash != genesisHash {
		t.Errorf("expected the first record's prev-hash to be genesis, got %s", tail[0].PrevHash)
	}
	if tail[1].PrevHash == tail[0].PrevHash {
		t.Error("expected successive records to carry distinct prev-hashes")
	}
}

func TestLog_VerifyCleanChain(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "log")
	ks := newFileKeyStore(filepath.Join(dir, "audit.key"))
	l, err := Open(logDir, ks)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.Append(ctx, Record{EventKind: EventIdentityVerificationPassed, PeerID: "peer-2"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	l.Close()

	key, err := ks.Load()
	if err != nil {
		t.Fatalf("load key for verification: %v", err)
	}
	result, err := Verify(logDir, key)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected a clean chain, got breaks: %v", result.Breaks)
	}
	if result.RecordsChecked != 5 {
		t.Fatalf("expected 5 records checked, got %d", result.RecordsChecked)
	}
}

func TestLog_CloseIsIdempotent(t *testing.T) {
	l, _ := newTestLog(t)
	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLog_AppendAfterCloseFails(t *testing.T) {
	l, _ := newTestLog(t)
	l.Close()

	err := l.Append(context.Background(), Record{EventKind: EventRateLimited})
	if err == nil {
		t.Error("expected Append after Close to fail")
	}
}

func TestLog_RecoverRestoresChainAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "log")
	ks := newFileKeyStore(filepath.Join(dir, "audit.key"))

	l, err := Open(logDir, ks)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Append(ctx, Record{EventKind: EventSandboxCreated, PeerID: "peer-4"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	lastHashBeforeClose := l.Tail()[1].PrevHash
	l.Close()

	l2, err := Open(logDir, ks)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	if len(l2.Tail()) != 2 {
		t.Fatalf("expected reopen to recover 2 tail records, got %d", len(l2.Tail()))
	}
	if l2.Tail()[1].PrevHash != lastHashBeforeClose {
		t.Fatal("expected recovered tail to match what was written before close")
	}

	if err := l2.Append(ctx, Record{EventKind: EventSandboxDestroyed, PeerID: "peer-4"}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	key, _ := ks.Load()
	result, err := Verify(logDir, key)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.OK() {
		t.Fatalf("expected the chain to stay consistent across reopen, got breaks: %v", result.Breaks)
	}
	if result.RecordsChecked != 3 {
		t.Fatalf("expected 3 records checked across both sessions, got %d", result.RecordsChecked)
	}
}

func TestLog_ReopenWithMissingKeyIsFatal(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "log")
	keyPath := filepath.Join(dir, "audit.key")

	l, err := Open(logDir, newFileKeyStore(keyPath))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Append(context.Background(), Record{EventKind: EventAccessGranted, PeerID: "peer-5"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	l.Close()

	if err := os.Remove(keyPath); err != nil {
		t.Fatalf("remove key file: %v", err)
	}

	if _, err := Open(logDir, newFileKeyStore(keyPath)); err == nil {
		t.Error("expected reopening with segments on disk but a missing key to fail")
	}
}

func TestLog_RotateLockedArchivesActiveSegment(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()
	if err := l.Append(ctx, Record{EventKind: EventPolicyDenied, PeerID: "peer-5"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	l.mu.Lock()
	err := l.rotateLocked()
	l.mu.Unlock()
	if err != nil {
		t.Fatalf("rotateLocked: %v", err)
	}

	if got := l.Stats().Rotations; got != 1 {
		t.Fatalf("expected 1 rotation, got %d", got)
	}
	if got := l.Stats().ActiveFileSize; got != 0 {
		t.Fatalf("expected a fresh active segment after rotation, got size %d", got)
	}

	segments, err := listSegments(filepath.Dir(l.activePath()))
	if err != nil {
		t.Fatalf("listSegments: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected an archive plus a fresh active file, got %v", segments)
	}
}

func TestLog_DegradedModeRejectsWrites(t *testing.T) {
	l, _ := newTestLog(t)
	l.mu.Lock()
	l.degrade(errNoSpace)
	l.mu.Unlock()

	err := l.Append(context.Background(), Record{EventKind: EventRateLimited})
	if err == nil {
		t.Fatal("expected Append to fail while the log is degraded")
	}

	ro, cause := l.Degraded()
	if !ro || cause != errNoSpace {
		t.Fatalf("expected Degraded to report the degrade cause, got ro=%v cause=%v", ro, cause)
	}

	l.Recover()
	if ro, _ := l.Degraded(); ro {
		t.Fatal("expected Recover to clear read-only mode")
	}
}
