package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter implements Limiter with one golang.org/x/time/rate token
// bucket per key. Adapted from MemoryRateLimiter's single-owner-behind-a-
// mutex map and background cleanup goroutine with explicit Close,
// generalized from a hand-rolled sliding-window log to a real
// token-bucket primitive.
type MemoryLimiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*entry

	cleanupInterval time.Duration
	done            chan struct{}
	wg              sync.WaitGroup
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewMemoryLimiter creates a MemoryLimiter and starts its background
// cleanup goroutine. Call Close to stop it.
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &MemoryLimiter{
		cfg:             cfg,
		buckets:         make(map[string]*entry),
		cleanupInterval: 10 * time.Minute,
		done:            make(chan struct{}),
	}
	m.wg.Add(1)
	go m.cleanupLoop()
	return m, nil
}

// NewMemoryLimiterWithCleanup is NewMemoryLimiter with an overridable
// cleanup interval, for tests.
func NewMemoryLimiterWithCleanup(cfg Config, cleanupInterval time.Duration) (*MemoryLimiter, error) {
	m, err := NewMemoryLimiter(cfg)
	if err != nil {
		return nil, err
	}
	m.cleanupInterval = cleanupInterval
	return m, nil
}

func (m *MemoryLimiter) ratePerSecond() rate.Limit {
	return rate.Limit(float64(m.cfg.RequestsPerWindow) / m.cfg.Window.Seconds())
}

func (m *MemoryLimiter) getOrCreate(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(m.ratePerSecond(), m.cfg.EffectiveBurst())}
		m.buckets[key] = e
	}
	e.lastUsed = time.Now()
	return e
}

// Check consumes one token from key's bucket, creating the bucket on first
// use. A denied check reports the delay until a token would next be
// available, without reserving it.
func (m *MemoryLimiter) Check(_ context.Context, key string) (Decision, time.Duration, error) {
	e := m.getOrCreate(key)
	if e.limiter.Allow() {
		return Allow, 0, nil
	}
	res := e.limiter.ReserveN(time.Now(), 1)
	retryAfter := res.Delay()
	res.Cancel()
	return RateLimited, retryAfter, nil
}

// Remove drops the bucket for key, used on peer disconnect.
func (m *MemoryLimiter) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	select {
	case <-m.done:
		return nil
	default:
		close(m.done)
	}
	m.wg.Wait()
	return nil
}

func (m *MemoryLimiter) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryLimiter) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-m.cleanupInterval)
	for key, e := range m.buckets {
		if e.lastUsed.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}

// Stats reports current bucket-group statistics for status reporting.
type Stats struct {
	TotalKeys int
}

// Stats returns current MemoryLimiter statistics.
func (m *MemoryLimiter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{TotalKeys: len(m.buckets)}
}

var _ Limiter = (*MemoryLimiter)(nil)
