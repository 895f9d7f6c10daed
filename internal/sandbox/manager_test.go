package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeBackend struct {
	mu       sync.Mutex
	tag      string
	healthy  bool
	failNext bool
	created  map[string]Caps
}

func newFakeBackend(tag string, healthy bool) *fakeBackend {
	return &fakeBackend{tag: tag, healthy: healthy, created: make(map[string]Caps)}
}

func (f *fakeBackend) Tag() string { return f.tag }

func (f *fakeBackend) Detect(context.Context) bool { return f.healthy }

func (f *fakeBackend) Create(_ context.Context, name string, caps Caps) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("simulated create failure")
	}
	f.created[name] = caps
	return nil
}

func (f *fakeBackend) Destroy(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.created, name)
	return nil
}

func TestManager_HasCapacity(t *testing.T) {
	m := NewManager(1, newFakeBackend("fake", true))
	if !m.HasCapacity() {
		t.Fatal("expected capacity at 0/1")
	}
	id, err := m.Allocate(context.Background(), LevelPrivileged)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if m.HasCapacity() {
		t.Error("expected no capacity at 1/1")
	}
	if err := m.Release(context.Background(), id); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !m.HasCapacity() {
		t.Error("expected capacity restored after release")
	}
}

func TestManager_AllocateAssignsCapsByLevel(t *testing.T) {
	backend := newFakeBackend("fake", true)
	m := NewManager(10, backend)
	id, err := m.Allocate(context.Background(), LevelCritical)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	caps := backend.created[id]
	if caps.CPUShares != 1024 || caps.MemoryMiB != 1024 {
		t.Errorf("caps = %+v, want Critical caps", caps)
	}
}

func TestManager_CapacityExhausted(t *testing.T) {
	m := NewManager(1, newFakeBackend("fake", true))
	if _, err := m.Allocate(context.Background(), LevelPrivileged); err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if _, err := m.Allocate(context.Background(), LevelPrivileged); err == nil {
		t.Error("expected second Allocate to fail on exhausted capacity")
	}
}

func TestManager_NilBackendRefusesAllocation(t *testing.T) {
	m := NewManager(10, nil)
	if _, err := m.Allocate(context.Background(), LevelPrivileged); err == nil {
		t.Error("expected Allocate with nil backend to fail")
	}
}

func TestManager_BackendFailureReleasesReservation(t *testing.T) {
	backend := newFakeBackend("fake", true)
	backend.failNext = true
	m := NewManager(1, backend)

	if _, err := m.Allocate(context.Background(), LevelPrivileged); err == nil {
		t.Fatal("expected first Allocate to fail")
	}
	if !m.HasCapacity() {
		t.Error("expected capacity to be released after back-end failure")
	}
	if _, err := m.Allocate(context.Background(), LevelPrivileged); err != nil {
		t.Errorf("expected second Allocate to succeed after reservation released: %v", err)
	}
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewManager(10, newFakeBackend("fake", true))
	if err := m.Release(context.Background(), "never-allocated"); err != nil {
		t.Errorf("Release on unknown id should be a no-op, got %v", err)
	}
}
