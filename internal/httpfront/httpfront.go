// Package httpfront is the net/http transport glue: it decodes
// incoming requests into frame.Frame BEGINs, drives the sse core, and
// renders the resulting HTTP/SSE frames back onto the wire.
package httpfront

import (
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ssegate.io/internal/audit"
	"ssegate.io/internal/authn"
	"ssegate.io/internal/frame"
	"ssegate.io/internal/obs"
	"ssegate.io/internal/router"
	"ssegate.io/internal/sse"
)

// initialWindowCredit is the budget the front door grants a reply
// stream immediately on connect; plain HTTP/1.1 has no receiver-driven
// flow control of its own; see DESIGN.md for why a fixed credit. It is
// granted once per connection and not replenished.
const initialWindowCredit = 1 << 20

const (
	limiterBurst    = 20
	limiterPerSecond = 10
)

// Handler adapts net/http requests onto the sse core.
type Handler struct {
	factory *sse.Factory
	router  *router.Router
	ids     idSupplier

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewHandler wires a Handler around an already-constructed core.
func NewHandler(factory *sse.Factory, rtr *router.Router, supplier idSupplier) *Handler {
	return &Handler{factory: factory, router: rtr, ids: supplier, limiters: make(map[string]*rate.Limiter)}
}

// idSupplier is the surface httpfront needs from internal/ids.Supplier.
type idSupplier interface {
	SupplyInitialID(routeID uint64) uint64
	SupplyReplyID(streamID uint64) uint64
	SupplyTraceID() uint64
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !h.allow(clientIP(r)) {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	routeID := routeIDForPath(r.URL.Path)
	authorization, err := authn.Decode(r.Header.Get("Authorization"))
	if err != nil {
		http.Error(w, "invalid bearer token", http.StatusUnauthorized)
		return
	}

	ext := h.buildExt(r)

	acceptInitialID := h.ids.SupplyInitialID(routeID)
	replyID := h.ids.SupplyReplyID(acceptInitialID)

	done := make(chan struct{})
	resp := &responder{w: w, done: done}
	flusher, ok := w.(http.Flusher)
	if ok {
		resp.flusher = flusher
	}

	h.router.Bind(acceptInitialID, func(*frame.Frame) {})
	h.router.Bind(replyID, resp.deliver)
	defer func() {
		h.router.Unbind(acceptInitialID)
		h.router.Unbind(replyID)
	}()

	begin := &frame.Frame{
		Kind:          frame.Begin,
		RouteID:       routeID,
		StreamID:      acceptInitialID,
		TraceID:       h.ids.SupplyTraceID(),
		Authorization: authorization,
		HTTPBegin:     ext,
	}

	ctx := r.Context()

	dispatcher, ok := h.factory.NewStream(begin)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		obs.LogRequest(map[string]any{"ts": start.UTC(), "method": r.Method, "path": r.URL.Path, "status": http.StatusNotFound})
		_ = audit.LogEvent(ctx, "subscription.rejected", authorization, map[string]any{"routeId": routeID, "reason": "route_not_found"})
		return
	}
	_ = audit.LogEvent(ctx, "subscription.opened", authorization, map[string]any{"routeId": routeID, "streamId": acceptInitialID})

	h.router.Throttle(replyID, &frame.Frame{Kind: frame.Window, StreamID: replyID, Credit: initialWindowCredit, Padding: 0})

	select {
	case <-ctx.Done():
		dispatcher.Stream(&frame.Frame{Kind: frame.End, StreamID: acceptInitialID})
	case <-done:
	}
	obs.LogRequest(map[string]any{"ts": start.UTC(), "method": r.Method, "path": r.URL.Path, "durationMs": time.Since(start).Milliseconds()})
	_ = audit.LogEvent(ctx, "subscription.closed", authorization, map[string]any{"routeId": routeID, "streamId": acceptInitialID})
}

func (h *Handler) buildExt(r *http.Request) *frame.HTTPBeginExt {
	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	headers := []frame.Header{
		{Name: ":method", Value: r.Method},
		{Name: ":path", Value: path},
	}
	if v := r.Header.Get("Accept"); v != "" {
		headers = append(headers, frame.Header{Name: "accept", Value: v})
	}
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		headers = append(headers, frame.Header{Name: "last-event-id", Value: v})
	}
	if v := r.Header.Get("Access-Control-Request-Method"); v != "" {
		headers = append(headers, frame.Header{Name: "access-control-request-method", Value: v})
	}
	if v := r.Header.Get("Access-Control-Request-Headers"); v != "" {
		headers = append(headers, frame.Header{Name: "access-control-request-headers", Value: v})
	}
	return &frame.HTTPBeginExt{Headers: headers}
}

func routeIDForPath(path string) uint64 {
	segment := path
	if i := strings.Index(path[1:], "/"); i >= 0 {
		segment = path[:i+1]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(segment))
	return h.Sum64()
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}

// allow implements a per-IP token bucket on top of golang.org/x/time/rate.
// The lazy-create path is guarded by limitersMu throughout, closing a
// race that a plain unguarded map read-then-create would have under
// concurrent first-requests from the same IP.
func (h *Handler) allow(ip string) bool {
	h.limitersMu.Lock()
	l, ok := h.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(limiterPerSecond), limiterBurst)
		h.limiters[ip] = l
	}
	h.limitersMu.Unlock()
	return l.Allow()
}

// responder renders frames addressed to a reply stream id onto an
// http.ResponseWriter, following the flush-per-event pattern of the
// teacher's SSE handler.
type responder struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func (resp *responder) deliver(f *frame.Frame) {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.closed {
		return
	}
	switch f.Kind {
	case frame.Begin:
		if f.HTTPBegin != nil {
			status := 200
			for _, hdr := range f.HTTPBegin.Headers {
				switch hdr.Name {
				case ":status":
					status = statusFromString(hdr.Value)
				case "content-type":
					resp.w.Header().Set("Content-Type", hdr.Value)
				default:
					if !hdr.IsPseudo() {
						resp.w.Header().Set(hdr.Name, hdr.Value)
					}
				}
			}
			resp.w.Header().Set("Cache-Control", "no-cache")
			resp.w.Header().Set("Connection", "keep-alive")
			resp.w.WriteHeader(status)
			if resp.flusher != nil {
				resp.flusher.Flush()
			}
		}
	case frame.Data:
		_, _ = resp.w.Write(f.DataBytes)
		if resp.flusher != nil {
			resp.flusher.Flush()
		}
	case frame.End, frame.Abort, frame.Reset:
		resp.closeLocked()
	}
}

func (resp *responder) closeLocked() {
	if resp.closed {
		return
	}
	resp.closed = true
	close(resp.done)
}

func statusFromString(s string) int {
	switch s {
	case "200":
		return http.StatusOK
	case "204":
		return http.StatusNoContent
	case "405":
		return http.StatusMethodNotAllowed
	default:
		return http.StatusOK
	}
}
