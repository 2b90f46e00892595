package sse

import (
	"sync"

	"ssegate.io/internal/frame"
)

// fakeRouter is an in-memory sse.Router for tests: route table plus
// sink/throttle registries, driven directly instead of over Postgres.
type fakeRouter struct {
	mu        sync.Mutex
	routes    map[uint64]routeEntry
	receivers map[uint64]Sink
	throttles map[uint64]ThrottleFunc
	captured  map[uint64][]*frame.Frame
}

type routeEntry struct {
	route Route
	min   uint64
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		routes:    make(map[uint64]routeEntry),
		receivers: make(map[uint64]Sink),
		throttles: make(map[uint64]ThrottleFunc),
		captured:  make(map[uint64][]*frame.Frame),
	}
}

func (r *fakeRouter) addRoute(id uint64, route Route, minAuthorization uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[id] = routeEntry{route: route, min: minAuthorization}
}

func (r *fakeRouter) Resolve(routeID, authorization uint64, filter RouteFilter) (Route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.routes[routeID]
	if !ok || authorization < entry.min {
		return Route{}, false
	}
	return entry.route, true
}

func (r *fakeRouter) SupplyReceiver(streamID uint64) Sink {
	return func(f *frame.Frame) {
		r.mu.Lock()
		r.captured[streamID] = append(r.captured[streamID], f)
		sink, ok := r.receivers[streamID]
		r.mu.Unlock()
		if ok {
			sink(f)
		}
	}
}

func (r *fakeRouter) bind(streamID uint64, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[streamID] = sink
}

func (r *fakeRouter) framesFor(streamID uint64) []*frame.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*frame.Frame(nil), r.captured[streamID]...)
}

func (r *fakeRouter) SetThrottle(streamID uint64, fn ThrottleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttles[streamID] = fn
}

func (r *fakeRouter) ClearThrottle(streamID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.throttles, streamID)
}

func (r *fakeRouter) throttle(streamID uint64, f *frame.Frame) bool {
	r.mu.Lock()
	fn, ok := r.throttles[streamID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	fn(f)
	return true
}

// fakeIDs hands out small, deterministic, sequential odd/even ids so
// test assertions can name exact expected stream ids.
type fakeIDs struct {
	mu   sync.Mutex
	next uint64
}

func newFakeIDs(start uint64) *fakeIDs {
	return &fakeIDs{next: start}
}

func (f *fakeIDs) SupplyInitialID(routeID uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next | 1
	f.next += 2
	return id
}

func (f *fakeIDs) SupplyReplyID(streamID uint64) uint64 {
	return streamID &^ 1
}

func (f *fakeIDs) SupplyTraceID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return f.next
}

// fakePool is a tiny unbounded BufferPool for tests that don't exercise
// PoolExhausted directly.
type fakePool struct{}

func newFakePool() *fakePool { return &fakePool{} }

func (p *fakePool) Acquire(streamID uint64) (Slot, bool) {
	buf := make([]byte, 4096)
	return &buf, true
}

func (p *fakePool) Buffer(slot Slot) []byte {
	return *(slot.(*[]byte))
}

func (p *fakePool) Release(slot Slot) {}

// exhaustedPool always reports exhaustion, for PoolExhausted tests.
type exhaustedPool struct{}

func (exhaustedPool) Acquire(uint64) (Slot, bool) { return nil, false }
func (exhaustedPool) Buffer(Slot) []byte          { return nil }
func (exhaustedPool) Release(Slot)                {}
