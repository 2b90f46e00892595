package sse

import "ssegate.io/internal/frame"

// Sink delivers a single frame to whichever party owns the stream id
// it is addressed to. The same Sink type carries both stream-direction
// and throttle-direction frames; Frame.Kind disambiguates, following
// the Design Notes' guidance to model callbacks as tagged function
// references rather than per-stream closures.
type Sink func(f *frame.Frame)

// ThrottleFunc is the callback shape Router.SetThrottle registers: a
// Sink bound to a particular handler's Throttle method.
type ThrottleFunc = Sink

// RouteFilter narrows route resolution by request path, matched as a
// prefix against the route's configured path (see DESIGN.md).
type RouteFilter struct {
	PathInfo string
}

// Route is what the external route-table manager resolves an incoming
// subscription to.
type Route struct {
	ID       uint64
	PathInfo string
}

// Router is the external collaborator §6 calls the "route-table
// manager": resolves routes, hands back per-stream frame sinks, and
// lets handlers register/clear throttle-direction callbacks.
type Router interface {
	Resolve(routeID, authorization uint64, filter RouteFilter) (Route, bool)
	SupplyReceiver(streamID uint64) Sink
	SetThrottle(streamID uint64, fn ThrottleFunc)
	ClearThrottle(streamID uint64)
}

// Slot is an opaque handle into the external buffer pool. The zero
// value (nil) is the NO_SLOT sentinel §6 describes.
type Slot any

// BufferPool is the external pinned-slot allocator the ReplyHandler
// uses to hold at most one deferred frame.
type BufferPool interface {
	Acquire(streamID uint64) (slot Slot, ok bool)
	Buffer(slot Slot) []byte
	Release(slot Slot)
}

// IDSupplier is the external stream-identifier supplier.
type IDSupplier interface {
	SupplyInitialID(routeID uint64) uint64
	SupplyReplyID(streamID uint64) uint64
	SupplyTraceID() uint64
}
