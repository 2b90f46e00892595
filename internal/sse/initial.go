package sse

import "ssegate.io/internal/frame"

// InitialHandler owns the network→application half of a stream pair:
// it forwards END/ABORT from the HTTP peer's original request stream
// toward the application, and relays WINDOW/RESET throttle signals the
// application sends back out to the HTTP peer.
type InitialHandler struct {
	acceptInitialID  uint64 // the HTTP peer's original request stream id
	connectInitialID uint64 // the id the adapter uses to address the application

	networkSink     Sink // toward the HTTP peer, tagged acceptInitialID
	applicationSink Sink // toward the application, tagged connectInitialID

	router          Router
	correlations    *Correlations
	pendingReplyKey uint64 // Correlations key, cleared on ABORT if still pending
	replyNetworkID  uint64 // the ReplyHandler's networkReplyID throttle registration to clear
}

func newInitialHandler(acceptInitialID, connectInitialID uint64, networkSink, applicationSink Sink, router Router, correlations *Correlations, pendingReplyKey, replyNetworkID uint64) *InitialHandler {
	return &InitialHandler{
		acceptInitialID:  acceptInitialID,
		connectInitialID: connectInitialID,
		networkSink:      networkSink,
		applicationSink:  applicationSink,
		router:           router,
		correlations:     correlations,
		pendingReplyKey:  pendingReplyKey,
		replyNetworkID:   replyNetworkID,
	}
}

// Stream handles frames arriving from the HTTP peer on acceptInitialID.
func (h *InitialHandler) Stream(f *frame.Frame) {
	switch f.Kind {
	case frame.Begin:
		// Already processed by the factory.
	case frame.End:
		h.applicationSink(&frame.Frame{Kind: frame.End, StreamID: h.connectInitialID, TraceID: f.TraceID})
	case frame.Abort:
		h.applicationSink(&frame.Frame{Kind: frame.Abort, StreamID: h.connectInitialID, TraceID: f.TraceID})
		if _, ok := h.correlations.Take(h.pendingReplyKey); ok {
			h.router.ClearThrottle(h.replyNetworkID)
		}
	default:
		h.networkSink(&frame.Frame{Kind: frame.Reset, StreamID: h.acceptInitialID, TraceID: f.TraceID})
	}
}

// Throttle handles WINDOW/RESET signals the application sends back,
// tagged connectInitialID, forwarding them to the HTTP peer.
func (h *InitialHandler) Throttle(f *frame.Frame) {
	switch f.Kind {
	case frame.Window:
		h.networkSink(&frame.Frame{
			Kind:         frame.Window,
			StreamID:     h.acceptInitialID,
			TraceID:      f.TraceID,
			Credit:       f.Credit,
			Padding:      f.Padding,
			GroupID:      f.GroupID,
			Capabilities: f.Capabilities | frame.ChallengeBit(),
		})
	case frame.Reset:
		h.networkSink(&frame.Frame{Kind: frame.Reset, StreamID: h.acceptInitialID, TraceID: f.TraceID})
	}
}
