package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries caps the number of identities tracked in memory.
const DefaultMaxEntries = 10000

// MemoryLimiter is a fixed-window counter table kept in process memory.
// The table holds at most maxEntries identities; admitting a new identity at
// capacity evicts the least recently seen one.
type MemoryLimiter struct {
	window     time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently seen
}

type entry struct {
	identity string
	count    int
	resetAt  time.Time
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithMaxEntries sets the identity table ceiling.
func WithMaxEntries(n int) MemoryOption {
	return func(l *MemoryLimiter) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// NewMemoryLimiter creates a limiter counting requests per window.
func NewMemoryLimiter(window time.Duration, opts ...MemoryOption) *MemoryLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	l := &MemoryLimiter{
		window:     window,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ Limiter = (*MemoryLimiter)(nil)

// Check counts one request for identity. The read-increment-write happens under
// a single lock so concurrent requests can never be under-counted. Rejected
// requests do not consume quota.
func (l *MemoryLimiter) Check(_ context.Context, identity string, limit int) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.touch(identity, now)
	if !now.Before(e.resetAt) {
		e.count = 0
		e.resetAt = now.Add(l.window)
	}

	if e.count >= limit {
		return Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: e.resetAt}, nil
	}
	e.count++
	return Result{Allowed: true, Limit: limit, Remaining: limit - e.count, ResetAt: e.resetAt}, nil
}

// touch returns the entry for identity, creating it (and evicting the least
// recently seen identity at capacity) if needed. Caller holds l.mu.
func (l *MemoryLimiter) touch(identity string, now time.Time) *entry {
	if el, ok := l.entries[identity]; ok {
		l.lru.MoveToFront(el)
		return el.Value.(*entry)
	}
	for l.lru.Len() >= l.maxEntries {
		oldest := l.lru.Back()
		l.lru.Remove(oldest)
		delete(l.entries, oldest.Value.(*entry).identity)
	}
	e := &entry{identity: identity, resetAt: now.Add(l.window)}
	l.entries[identity] = l.lru.PushFront(e)
	return e
}

// Len returns the number of tracked identities.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

// Sweep drops identities whose window has already closed.
func (l *MemoryLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for el := l.lru.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if !now.Before(e.resetAt) {
			l.lru.Remove(el)
			delete(l.entries, e.identity)
		}
		el = prev
	}
}

// StartJanitor sweeps expired identities every interval until ctx is done.
func (l *MemoryLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}
