package obs

import "github.com/prometheus/client_golang/prometheus"

var (
	sseProtocolViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_protocol_violations_total",
			Help: "Protocol violations observed by the SSE stream-pair core, by reason.",
		},
		[]string{"reason"},
	)
	sseRouteNotFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_route_not_found_total",
		Help: "Subscriptions dropped because no application route matched.",
	})
	sseMethodNotAllowed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_method_not_allowed_total",
		Help: "Requests rejected with 405 for using a non-GET method on an SSE endpoint.",
	})
	sseCorsPreflight = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_cors_preflight_total",
		Help: "CORS preflight requests short-circuited with 204.",
	})
	sseChallengeInjected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_challenge_injected_total",
		Help: "Challenge events successfully encoded onto the outbound stream.",
	})
	sseChallengeDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sse_challenge_dropped_total",
		Help: "Challenge events dropped because no slot was available.",
	})
	sseSlotOccupied = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sse_reply_slots_occupied",
		Help: "Number of ReplyHandler instances currently holding a deferred-frame slot.",
	})
)

// InitSSE registers the SSE core's metrics in the default registry.
func InitSSE() {
	prometheus.MustRegister(
		sseProtocolViolations,
		sseRouteNotFound,
		sseMethodNotAllowed,
		sseCorsPreflight,
		sseChallengeInjected,
		sseChallengeDropped,
		sseSlotOccupied,
	)
}

// SSEMetrics implements sse.Metrics against the Prometheus collectors
// above. Constructed once and shared across every Factory.
type SSEMetrics struct{}

func (SSEMetrics) ProtocolViolation(reason string) { sseProtocolViolations.WithLabelValues(reason).Inc() }
func (SSEMetrics) RouteNotFound()                  { sseRouteNotFound.Inc() }
func (SSEMetrics) MethodNotAllowed()               { sseMethodNotAllowed.Inc() }
func (SSEMetrics) CorsPreflight()                  { sseCorsPreflight.Inc() }
func (SSEMetrics) ChallengeInjected()              { sseChallengeInjected.Inc() }
func (SSEMetrics) ChallengeDropped()               { sseChallengeDropped.Inc() }
func (SSEMetrics) SlotOccupied(occupied bool) {
	if occupied {
		sseSlotOccupied.Inc()
		return
	}
	sseSlotOccupied.Dec()
}
