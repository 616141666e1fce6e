package credentials

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	bundle    Bundle
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryTable is an in-process Table. With a positive TTL, entries expire
// that long after they were first written; later updates keep the deadline.
type MemoryTable struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryTable(ttl time.Duration) *MemoryTable {
	return &MemoryTable{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// lookup returns the live entry for key. Caller holds mu.
func (t *MemoryTable) lookup(key string) (memoryEntry, bool) {
	e, ok := t.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(t.now()) {
		delete(t.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (t *MemoryTable) Get(_ context.Context, key string) (Bundle, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lookup(key)
	if !ok {
		return Bundle{}, false, nil
	}
	return e.bundle.Clone(), true, nil
}

func (t *MemoryTable) GetOrDefault(ctx context.Context, key string) (Bundle, error) {
	b, _, err := t.Get(ctx, key)
	return b, err
}

func (t *MemoryTable) Set(_ context.Context, key string, b Bundle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = memoryEntry{bundle: b.Clone(), expiresAt: t.deadline()}
	return nil
}

func (t *MemoryTable) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
	return nil
}

func (t *MemoryTable) Update(_ context.Context, key string, fn func(Bundle) (Bundle, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.lookup(key)
	if !ok {
		e = memoryEntry{expiresAt: t.deadline()}
	}
	next, err := fn(e.bundle.Clone())
	if err != nil {
		return err
	}
	e.bundle = next.Clone()
	t.entries[key] = e
	return nil
}

func (t *MemoryTable) Take(_ context.Context, key string) (Bundle, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lookup(key)
	if !ok {
		return Bundle{}, false, nil
	}
	delete(t.entries, key)
	return e.bundle, true, nil
}

func (t *MemoryTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep removes every entry expired at now.
func (t *MemoryTable) Sweep(_ context.Context, now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for k, e := range t.entries {
		if e.expired(now) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (t *MemoryTable) deadline() time.Time {
	if t.ttl <= 0 {
		return time.Time{}
	}
	return t.now().Add(t.ttl)
}
