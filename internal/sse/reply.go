package sse

import (
	"encoding/json"

	"ssegate.io/internal/frame"
)

type replyState uint8

const (
	stateBeforeBegin replyState = iota
	stateAfterBeginOrData
	stateClosed
)

// ReplyHandler owns the application→network half of a stream pair: it
// turns application DATA into SSE-framed HTTP DATA,
// tracks the two independent flow-control budgets, defers a final id:
// frame through a pooled slot when the network window can't take it,
// and injects challenge events on demand.
type ReplyHandler struct {
	applicationRouteID uint64
	applicationReplyID uint64
	networkRouteID     uint64
	networkReplyID     uint64

	timestampRequested bool
	state              replyState

	networkReplyBudget        int32
	networkReplyPadding       int32
	minimumNetworkReplyBudget int32 // -1 sentinel: not yet established
	applicationReplyBudget    int32

	slot        Slot
	slotOffset  int
	slotPadding int32 // networkReplyPadding in effect when the slot was populated

	router Router
	pool   BufferPool
	config Config

	applicationSink Sink
	networkSink     Sink

	metrics Metrics
}

func newReplyHandler(applicationRouteID, applicationReplyID, networkRouteID, networkReplyID uint64, timestampRequested bool, applicationSink, networkSink Sink, router Router, pool BufferPool, config Config, metrics Metrics) *ReplyHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ReplyHandler{
		applicationRouteID:        applicationRouteID,
		applicationReplyID:        applicationReplyID,
		networkRouteID:            networkRouteID,
		networkReplyID:            networkReplyID,
		timestampRequested:        timestampRequested,
		state:                     stateBeforeBegin,
		minimumNetworkReplyBudget: -1,
		applicationSink:           applicationSink,
		networkSink:               networkSink,
		router:                    router,
		pool:                      pool,
		config:                    config,
		metrics:                   metrics,
	}
}

func contentType(timestampRequested bool) string {
	if timestampRequested {
		return "text/event-stream;ext=timestamp"
	}
	return "text/event-stream"
}

// Stream handles frames arriving from the application, tagged
// applicationReplyID.
func (h *ReplyHandler) Stream(f *frame.Frame) {
	switch h.state {
	case stateBeforeBegin:
		if f.Kind != frame.Begin {
			h.resetApplication(f.TraceID)
			return
		}
		h.networkSink(&frame.Frame{
			Kind:     frame.Begin,
			StreamID: h.networkReplyID,
			RouteID:  h.networkRouteID,
			TraceID:  f.TraceID,
			HTTPBegin: &frame.HTTPBeginExt{Headers: []frame.Header{
				{Name: ":status", Value: "200"},
				{Name: "content-type", Value: contentType(h.timestampRequested)},
			}},
		})
		h.state = stateAfterBeginOrData
	case stateAfterBeginOrData:
		switch f.Kind {
		case frame.Data:
			h.onApplicationData(f)
		case frame.End:
			h.onApplicationEnd(f)
		case frame.Abort:
			h.networkSink(&frame.Frame{Kind: frame.Abort, StreamID: h.networkReplyID, TraceID: f.TraceID})
			h.close()
		default:
			h.violation(f.TraceID)
		}
	case stateClosed:
	}
}

func (h *ReplyHandler) onApplicationData(f *frame.Frame) {
	h.applicationReplyBudget -= int32(len(f.DataBytes)) + f.Padding
	if h.applicationReplyBudget < 0 {
		h.violation(f.TraceID)
		return
	}
	var id, typ []byte
	var timestamp int64
	if f.SSEData != nil {
		id = f.SSEData.ID
		typ = f.SSEData.Type
		if h.timestampRequested {
			timestamp = f.SSEData.Timestamp
		}
	}
	encoded := EncodeEvent(Event{Flags: FlagInit | FlagFin, ID: id, Type: typ, Timestamp: timestamp, Data: f.DataBytes})
	h.emitNetworkData(encoded, f.TraceID)
}

func (h *ReplyHandler) onApplicationEnd(f *frame.Frame) {
	if f.SSEEnd == nil {
		h.networkSink(&frame.Frame{Kind: frame.End, StreamID: h.networkReplyID, TraceID: f.TraceID})
		h.close()
		return
	}
	encoded := EncodeEvent(Event{Flags: FlagInit | FlagFin, ID: f.SSEEnd.ID})
	need := int32(len(encoded)) + h.networkReplyPadding
	if h.networkReplyBudget >= need {
		h.emitNetworkData(encoded, f.TraceID)
		h.networkSink(&frame.Frame{Kind: frame.End, StreamID: h.networkReplyID, TraceID: f.TraceID})
		h.close()
		return
	}
	slot, ok := h.pool.Acquire(h.networkReplyID)
	if !ok {
		h.metrics.ProtocolViolation("slot_exhausted")
		h.networkSink(&frame.Frame{Kind: frame.End, StreamID: h.networkReplyID, TraceID: f.TraceID})
		h.close()
		return
	}
	buf := h.pool.Buffer(slot)
	n := copy(buf, encoded)
	h.slot = slot
	h.slotOffset = n
	h.slotPadding = h.networkReplyPadding
	h.metrics.SlotOccupied(true)
	// Stay open: the deferred END is emitted once a later WINDOW drains the slot.
}

func (h *ReplyHandler) emitNetworkData(payload []byte, traceID uint64) {
	h.emitNetworkDataWithPadding(payload, h.networkReplyPadding, traceID)
}

// emitNetworkDataWithPadding sends payload with an explicit padding
// value and debits it from networkReplyBudget. A slot drained from the
// deferred-END/challenge path must account against the padding that
// was in effect when the frame was buffered, not the current one.
func (h *ReplyHandler) emitNetworkDataWithPadding(payload []byte, padding int32, traceID uint64) {
	h.networkSink(&frame.Frame{Kind: frame.Data, StreamID: h.networkReplyID, TraceID: traceID, DataBytes: payload, Padding: padding})
	h.networkReplyBudget -= int32(len(payload)) + padding
}

// Throttle handles WINDOW/RESET/CHALLENGE arriving from the HTTP peer,
// tagged networkReplyID.
func (h *ReplyHandler) Throttle(f *frame.Frame) {
	switch f.Kind {
	case frame.Window:
		h.onNetworkWindow(f)
	case frame.Reset:
		h.applicationSink(&frame.Frame{Kind: frame.Reset, StreamID: h.applicationReplyID, TraceID: f.TraceID})
		h.close()
	case frame.Challenge:
		h.onChallenge(f)
	}
}

func (h *ReplyHandler) onNetworkWindow(f *frame.Frame) {
	h.networkReplyBudget += f.Credit
	h.networkReplyPadding = f.Padding

	if h.minimumNetworkReplyBudget == -1 {
		h.minimumNetworkReplyBudget = f.Credit
		if h.config.InitialComment != nil {
			encoded := EncodeEvent(Event{Flags: FlagInit | FlagFin, Comment: h.config.InitialComment})
			h.emitNetworkData(encoded, f.TraceID)
		}
	}

	if h.networkReplyBudget < h.minimumNetworkReplyBudget {
		return
	}
	h.minimumNetworkReplyBudget = 0

	if h.slot != nil {
		buf := h.pool.Buffer(h.slot)[:h.slotOffset]
		need := int32(len(buf)) + h.slotPadding
		if h.networkReplyBudget >= need {
			h.emitNetworkDataWithPadding(buf, h.slotPadding, f.TraceID)
			h.pool.Release(h.slot)
			h.slot = nil
			h.slotOffset = 0
			h.slotPadding = 0
			h.metrics.SlotOccupied(false)
			h.networkSink(&frame.Frame{Kind: frame.End, StreamID: h.networkReplyID, TraceID: f.TraceID})
			h.close()
			return
		}
		// Slot still pending: no application credit until it drains.
		return
	}

	applicationReplyPadding := h.networkReplyPadding + MaximumHeaderSize
	applicationReplyCredit := h.networkReplyBudget - h.applicationReplyBudget
	if applicationReplyCredit > 0 {
		h.applicationSink(&frame.Frame{
			Kind:     frame.Window,
			StreamID: h.applicationReplyID,
			TraceID:  f.TraceID,
			Credit:   applicationReplyCredit,
			Padding:  applicationReplyPadding,
			GroupID:  f.GroupID,
		})
		h.applicationReplyBudget += applicationReplyCredit
	}
}

type challengePayload struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers"`
}

func (h *ReplyHandler) onChallenge(f *frame.Frame) {
	if f.HTTPChallenge == nil {
		return
	}
	payload := challengePayload{Headers: make(map[string]string)}
	for _, hdr := range f.HTTPChallenge.Headers {
		if hdr.Name == ":method" {
			payload.Method = hdr.Value
			continue
		}
		if hdr.IsPseudo() {
			continue
		}
		payload.Headers[hdr.Name] = hdr.Value
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.metrics.ChallengeDropped()
		return
	}
	encoded := EncodeEvent(Event{Flags: FlagInit | FlagFin, Type: []byte(h.config.challengeEventType()), Data: data})

	if h.networkReplyBudget > int32(len(encoded))+h.networkReplyPadding {
		h.emitNetworkData(encoded, f.TraceID)
		h.metrics.ChallengeInjected()
		return
	}

	slot := h.slot
	if slot == nil {
		s, ok := h.pool.Acquire(h.networkReplyID)
		if !ok {
			h.metrics.ChallengeDropped()
			return
		}
		slot = s
		h.slot = slot
		h.slotOffset = 0
		h.slotPadding = h.networkReplyPadding
		h.metrics.SlotOccupied(true)
	}
	buf := h.pool.Buffer(slot)
	if h.slotOffset+len(encoded) > len(buf) {
		h.metrics.ChallengeDropped()
		return
	}
	copy(buf[h.slotOffset:], encoded)
	h.slotOffset += len(encoded)
	h.metrics.ChallengeInjected()
}

func (h *ReplyHandler) resetApplication(traceID uint64) {
	h.applicationSink(&frame.Frame{Kind: frame.Reset, StreamID: h.applicationReplyID, TraceID: traceID})
	h.close()
}

func (h *ReplyHandler) violation(traceID uint64) {
	h.applicationSink(&frame.Frame{Kind: frame.Reset, StreamID: h.applicationReplyID, TraceID: traceID})
	h.networkSink(&frame.Frame{Kind: frame.Abort, StreamID: h.networkReplyID, TraceID: traceID})
	h.metrics.ProtocolViolation("reply_pair_violation")
	h.close()
}

func (h *ReplyHandler) close() {
	if h.state == stateClosed {
		return
	}
	h.state = stateClosed
	if h.slot != nil {
		h.pool.Release(h.slot)
		h.slot = nil
		h.slotOffset = 0
		h.slotPadding = 0
		h.metrics.SlotOccupied(false)
	}
	h.router.ClearThrottle(h.networkReplyID)
}
