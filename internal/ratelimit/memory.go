package ratelimit

import (
	"context"
	"sync"
	"time"
)

type failureWindow struct {
	count   int
	started time.Time
}

// MemoryLimiter keeps failure counters in process memory.
type MemoryLimiter struct {
	maxAttempts int
	window      time.Duration
	now         func() time.Time

	mu        sync.Mutex
	failures  map[string]*failureWindow
	lastSweep time.Time
}

// NewMemoryLimiter creates a limiter allowing maxAttempts failures per window.
func NewMemoryLimiter(maxAttempts int, window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &MemoryLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		failures:    make(map[string]*failureWindow),
	}
}

func (m *MemoryLimiter) Allowed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := m.currentLocked(key)
	if entry == nil {
		return true, nil
	}
	return entry.count < m.maxAttempts, nil
}

func (m *MemoryLimiter) RecordFailure(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()
	entry := m.currentLocked(key)
	if entry == nil {
		entry = &failureWindow{started: m.now()}
		m.failures[key] = entry
	}
	entry.count++
	return nil
}

func (m *MemoryLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, key)
	return nil
}

// currentLocked returns the live window for key, dropping an elapsed one.
func (m *MemoryLimiter) currentLocked(key string) *failureWindow {
	entry, ok := m.failures[key]
	if !ok {
		return nil
	}
	if m.now().Sub(entry.started) >= m.window {
		delete(m.failures, key)
		return nil
	}
	return entry
}

// sweepLocked drops every elapsed window, at most once per window, so keys
// that are never retried do not accumulate.
func (m *MemoryLimiter) sweepLocked() {
	now := m.now()
	if m.lastSweep.IsZero() {
		m.lastSweep = now
		return
	}
	if now.Sub(m.lastSweep) < m.window {
		return
	}
	for key, entry := range m.failures {
		if now.Sub(entry.started) >= m.window {
			delete(m.failures, key)
		}
	}
	m.lastSweep = now
}

func (m *MemoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.failures)
}
