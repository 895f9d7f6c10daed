package auditlog

import (
	"bytes"
	"testing"
)

func TestSealer_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := newSealer(key)
	if err != nil {
		t.Fatalf("newSealer: %v", err)
	}

	plaintext := []byte(`{"event_kind":"connection_established"}`)
	blob, err := s.seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Error("sealed blob must not contain the plaintext verbatim")
	}

	got, err := s.open(blob)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round-trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestSealer_RejectsWrongKeySize(t *testing.T) {
	if _, err := newSealer([]byte("too-short")); err == nil {
		t.Error("expected an error for a key that is not 32 bytes")
	}
}

func TestSealer_TamperedCiphertextFailsToOpen(t *testing.T) {
	key, _ := GenerateKey()
	s, _ := newSealer(key)
	blob, _ := s.seal([]byte("hello"))
	blob[len(blob)-1] ^= 0xFF

	if _, err := s.open(blob); err == nil {
		t.Error("expected tampered ciphertext to fail authentication")
	}
}

func TestChainHash_DeterministicAndOrderSensitive(t *testing.T) {
	a := chainHash("prev-a", []byte("record-1"))
	b := chainHash("prev-a", []byte("record-1"))
	if a != b {
		t.Fatal("chainHash must be deterministic for identical inputs")
	}
	c := chainHash("prev-b", []byte("record-1"))
	if a == c {
		t.Fatal("chainHash must depend on the previous hash")
	}
}
