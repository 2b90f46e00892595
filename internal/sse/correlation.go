package sse

import "sync"

// Correlations maps a connect-reply stream id (the id on which the
// application will reply) to the ReplyHandler awaiting its first use.
// Point insertions/removals keyed by unique ids stay lock-free under a
// single-threaded executor per stream pair, but the map itself is
// process-wide, so access is mutex-guarded here to be safe under a
// multi-threaded embedding.
type Correlations struct {
	mu      sync.Mutex
	entries map[uint64]*ReplyHandler
}

// NewCorrelations constructs an empty correlation table.
func NewCorrelations() *Correlations {
	return &Correlations{entries: make(map[uint64]*ReplyHandler)}
}

// Put inserts the correlation entry. It panics if one already exists
// for id: at most one correlation entry may exist per id at any
// moment, so a collision is a programmer error to catch in tests, not
// a runtime condition to tolerate.
func (c *Correlations) Put(id uint64, h *ReplyHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; exists {
		panic("sse: duplicate correlation entry")
	}
	c.entries[id] = h
}

// Take removes and returns the entry for id, if any.
func (c *Correlations) Take(id uint64) (*ReplyHandler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	return h, ok
}

// Len reports the number of pending (unclaimed) correlation entries.
// Exposed for tests and metrics, not used by the core logic itself.
func (c *Correlations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
