package pipeline

import "sync"

// RequestBudget is the global, run-lifetime request counter for a
// rate-limited upstream. It is an explicit object owned by the ingestion
// run, not a process-wide singleton, so concurrent or repeated runs stay
// isolated. Once the ceiling is reached every subsequent Allow returns
// false: a hard stop, not a throttle-and-retry.
type RequestBudget struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewRequestBudget creates a budget with the given ceiling. A non-positive
// limit means unlimited.
func NewRequestBudget(limit int) *RequestBudget {
	return &RequestBudget{limit: limit}
}

// Allow reports whether another request may be issued.
func (b *RequestBudget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit <= 0 || b.used < b.limit
}

// Use records one issued request. Failed requests count too: they were
// spent against the provider regardless of outcome.
func (b *RequestBudget) Use() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used++
}

// Used returns how many requests have been recorded.
func (b *RequestBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Limit returns the configured ceiling.
func (b *RequestBudget) Limit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit
}

// Exhausted reports whether the ceiling has been reached.
func (b *RequestBudget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit > 0 && b.used >= b.limit
}
