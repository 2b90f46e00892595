package sse

import "ssegate.io/internal/frame"

// Dispatcher is what StreamFactory.NewStream returns: something that
// can receive both stream-direction and throttle-direction frames for
// the id it was bound to.
type Dispatcher interface {
	Stream(f *frame.Frame)
	Throttle(f *frame.Frame)
}

// noopDispatcher absorbs frames for streams the factory classified but
// chose not to pair (CORS preflight, 405). A stream with no matching
// route gets no dispatcher at all.
type noopDispatcher struct{}

func (noopDispatcher) Stream(*frame.Frame)   {}
func (noopDispatcher) Throttle(*frame.Frame) {}

// Factory is the entry point that turns an inbound BEGIN into a
// classified response (CORS preflight, method rejection, route-not-
// found) or a paired handler.
type Factory struct {
	Router       Router
	IDs          IDSupplier
	Pool         BufferPool
	Correlations *Correlations
	Config       Config
	Metrics      Metrics
}

// NewFactory wires the collaborators together, defaulting Metrics to a
// no-op implementation when nil.
func NewFactory(router Router, ids IDSupplier, pool BufferPool, correlations *Correlations, config Config, metrics Metrics) *Factory {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Factory{Router: router, IDs: ids, Pool: pool, Correlations: correlations, Config: config, Metrics: metrics}
}

// NewStream implements newStream(frame_kind, buffer, throttle) →
// optional handler. The supplied frame must be a BEGIN.
func (f *Factory) NewStream(begin *frame.Frame) (Dispatcher, bool) {
	if begin.Kind != frame.Begin {
		return nil, false
	}
	if !frame.IsInitial(begin.StreamID) {
		h, ok := f.Correlations.Take(begin.StreamID)
		if !ok {
			return nil, false
		}
		h.Stream(begin)
		return h, true
	}
	return f.newAcceptStream(begin)
}

func (f *Factory) newAcceptStream(begin *frame.Frame) (Dispatcher, bool) {
	ext := begin.HTTPBegin
	method, _ := ext.Get(":method")

	if method == "OPTIONS" {
		_, hasReqMethod := ext.Get("access-control-request-method")
		_, hasReqHeaders := ext.Get("access-control-request-headers")
		if hasReqMethod || hasReqHeaders {
			f.Metrics.CorsPreflight()
			f.respondShortCircuit(begin, "204", map[string]string{"access-control-allow-methods": "GET"})
			return noopDispatcher{}, true
		}
	}

	if method != "GET" {
		f.Metrics.MethodNotAllowed()
		f.respondShortCircuit(begin, "405", nil)
		return noopDispatcher{}, true
	}

	parsed := ParseRequest(ext)
	pathInfo := ""
	if parsed.PathInfo != nil {
		pathInfo = *parsed.PathInfo
	}
	route, ok := f.Router.Resolve(begin.RouteID, begin.Authorization, RouteFilter{PathInfo: pathInfo})
	if !ok {
		f.Metrics.RouteNotFound()
		return nil, false
	}

	acceptInitialID := begin.StreamID
	connectInitialID := f.IDs.SupplyInitialID(route.ID)
	connectReplyID := f.IDs.SupplyReplyID(connectInitialID)
	acceptReplyID := f.IDs.SupplyReplyID(acceptInitialID)

	timestampRequested := AcceptsTimestamp(ext)

	reply := newReplyHandler(
		route.ID, connectReplyID, begin.RouteID, acceptReplyID,
		timestampRequested,
		f.Router.SupplyReceiver(connectReplyID),
		f.Router.SupplyReceiver(acceptReplyID),
		f.Router, f.Pool, f.Config, f.Metrics,
	)
	initial := newInitialHandler(
		acceptInitialID, connectInitialID,
		f.Router.SupplyReceiver(acceptInitialID),
		f.Router.SupplyReceiver(connectInitialID),
		f.Router, f.Correlations, connectReplyID, acceptReplyID,
	)

	f.Correlations.Put(connectReplyID, reply)
	f.Router.SetThrottle(connectInitialID, initial.Throttle)
	f.Router.SetThrottle(acceptReplyID, reply.Throttle)

	appSink := f.Router.SupplyReceiver(connectInitialID)
	appSink(&frame.Frame{
		Kind:     frame.Begin,
		RouteID:  route.ID,
		StreamID: connectInitialID,
		TraceID:  f.IDs.SupplyTraceID(),
		SSEBegin: &frame.SSEBeginExt{PathInfo: parsed.PathInfo, LastEventID: parsed.LastEventID},
	})

	return initial, true
}

func (f *Factory) respondShortCircuit(begin *frame.Frame, status string, extraHeaders map[string]string) {
	ack := f.Router.SupplyReceiver(begin.StreamID)
	ack(&frame.Frame{Kind: frame.Window, StreamID: begin.StreamID, RouteID: begin.RouteID, TraceID: begin.TraceID, Credit: 0})

	replyID := f.IDs.SupplyReplyID(begin.StreamID)
	headers := []frame.Header{{Name: ":status", Value: status}}
	for name, value := range extraHeaders {
		headers = append(headers, frame.Header{Name: name, Value: value})
	}
	reply := f.Router.SupplyReceiver(replyID)
	reply(&frame.Frame{Kind: frame.Begin, StreamID: replyID, RouteID: begin.RouteID, TraceID: begin.TraceID, HTTPBegin: &frame.HTTPBeginExt{Headers: headers}})
	reply(&frame.Frame{Kind: frame.End, StreamID: replyID, RouteID: begin.RouteID, TraceID: begin.TraceID})
}
