// Package bufpool implements the sse.BufferPool collaborator: a fixed
// number of pinned, maximum-frame-sized buffers recycled with
// sync.Pool, following the common sync.Pool get/put idiom for scratch
// buffers (see DESIGN.md).
package bufpool

import (
	"sync"

	"ssegate.io/internal/sse"
)

// Pool hands out at most capacity buffers of frameSize bytes at a
// time; Acquire beyond that returns ok=false, the pool-exhausted
// signal callers fall back on when no slot is available.
type Pool struct {
	frameSize int
	tokens    chan struct{}
	pool      sync.Pool
}

type handle struct {
	buf []byte
}

// New constructs a pool of capacity buffers, each frameSize bytes.
func New(frameSize, capacity int) *Pool {
	return &Pool{
		frameSize: frameSize,
		tokens:    make(chan struct{}, capacity),
		pool: sync.Pool{New: func() any {
			return &handle{buf: make([]byte, frameSize)}
		}},
	}
}

// Acquire reserves one buffer for streamID. The buffer's ownership is
// opaque to the caller; Buffer and Release are the only valid
// operations on the returned handle.
func (p *Pool) Acquire(streamID uint64) (sse.Slot, bool) {
	select {
	case p.tokens <- struct{}{}:
		h := p.pool.Get().(*handle)
		return h, true
	default:
		return nil, false
	}
}

// Buffer returns the mutable byte slice backing slot.
func (p *Pool) Buffer(slot sse.Slot) []byte {
	return slot.(*handle).buf
}

// Release returns slot to the pool, freeing its reserved capacity.
func (p *Pool) Release(slot sse.Slot) {
	h := slot.(*handle)
	p.pool.Put(h)
	<-p.tokens
}
