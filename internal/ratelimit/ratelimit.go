// Package ratelimit implements a fixed-window request counter keyed by
// client identity, with a pluggable entry store so a single-instance
// deployment runs on an in-memory map and a multi-instance one on Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Entry is one client's counter for the current window.
type Entry struct {
	Count     int       `json:"count"`
	ResetTime time.Time `json:"resetTime"`
}

// Store maps client ids to window entries. Implementations only need atomic
// per-key updates; concurrent bursts from one key may over- or under-count
// by a request, which is accepted.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	// Sweep evicts entries whose window ended before now.
	Sweep(ctx context.Context, now time.Time) error
}

// Result reports one admission decision.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter admits up to max requests per key per window.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	now    func() time.Time
}

func New(store Store, max int, window time.Duration) *Limiter {
	return &Limiter{store: store, max: max, window: window, now: time.Now}
}

// Check records a request for key and reports whether it is admitted. A
// stale entry counts as a fresh window.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	now := l.now()

	entry, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if ok && entry.ResetTime.Before(now) {
		if err := l.store.Delete(ctx, key); err != nil {
			return Result{}, err
		}
		ok = false
	}

	if !ok {
		entry = Entry{Count: 1, ResetTime: now.Add(l.window)}
		if err := l.store.Put(ctx, key, entry); err != nil {
			return Result{}, err
		}
		return Result{Allowed: true, Remaining: l.max - 1, ResetAt: entry.ResetTime}, nil
	}

	if entry.Count >= l.max {
		return Result{Allowed: false, Remaining: 0, ResetAt: entry.ResetTime}, nil
	}

	entry.Count++
	if err := l.store.Put(ctx, key, entry); err != nil {
		return Result{}, err
	}
	return Result{Allowed: true, Remaining: l.max - entry.Count, ResetAt: entry.ResetTime}, nil
}

// StartSweep evicts stale entries on a fixed interval until ctx is
// cancelled. This bounds memory independently of request traffic; the
// interval need not relate to the window size.
func (l *Limiter) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = l.store.Sweep(ctx, l.now())
			}
		}
	}()
}

// MemoryStore keeps entries in a mutex-guarded map.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.ResetTime.Before(now) {
			delete(m.entries, key)
		}
	}
	return nil
}
