// Package router implements the sse.Router collaborator: a
// Postgres-backed route table (who may subscribe to what) combined
// with the process-wide stream-id → sink and stream-id → throttle
// registries every bound transport attaches itself to.
package router

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ssegate.io/internal/frame"
	"ssegate.io/internal/sse"
)

// Router resolves routes against Postgres and brokers frame delivery
// between whichever transports are attached to a stream id at any
// given moment.
type Router struct {
	db *sql.DB

	mu        sync.Mutex
	receivers map[uint64]sse.Sink
	throttles map[uint64]sse.ThrottleFunc
}

// Open connects to Postgres via the pgx stdlib driver and returns a
// Router backed by it.
func Open(dsn string) (*Router, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an already-open *sql.DB. Exposed separately from Open so
// tests can inject a sqlmock-backed *sql.DB.
func New(db *sql.DB) *Router {
	return &Router{
		db:        db,
		receivers: make(map[uint64]sse.Sink),
		throttles: make(map[uint64]sse.ThrottleFunc),
	}
}

// Close releases the underlying database connection pool.
func (r *Router) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// DB exposes the underlying handle for migrations/health checks.
func (r *Router) DB() *sql.DB { return r.db }

// Resolve looks up the route named by routeID, scoped to authorization,
// narrowed by filter.PathInfo via a prefix match (see DESIGN.md).
func (r *Router) Resolve(routeID, authorization uint64, filter sse.RouteFilter) (sse.Route, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var pathInfo string
	var minAuthorization uint64
	err := r.db.QueryRowContext(ctx, `
		select path_info, min_authorization
		from sse_routes
		where id = $1
	`, int64(routeID)).Scan(&pathInfo, &minAuthorization)
	if err != nil {
		return sse.Route{}, false
	}
	if authorization < minAuthorization {
		return sse.Route{}, false
	}
	if pathInfo != "" && len(filter.PathInfo) < len(pathInfo) {
		return sse.Route{}, false
	}
	if pathInfo != "" && filter.PathInfo[:len(pathInfo)] != pathInfo {
		return sse.Route{}, false
	}
	return sse.Route{ID: routeID, PathInfo: pathInfo}, true
}

// Bind attaches sink as the real delivery target for streamID. A
// transport (the HTTP front door, or an application-side adapter)
// calls this before it can be addressed by SupplyReceiver.
func (r *Router) Bind(streamID uint64, sink sse.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[streamID] = sink
}

// Unbind detaches a previously bound sink.
func (r *Router) Unbind(streamID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.receivers, streamID)
}

// SupplyReceiver returns a Sink that resolves its target lazily, at
// call time, so binding order relative to factory construction never
// matters. Frames addressed to an unbound id are logged and dropped.
func (r *Router) SupplyReceiver(streamID uint64) sse.Sink {
	return func(f *frame.Frame) {
		r.mu.Lock()
		sink, ok := r.receivers[streamID]
		r.mu.Unlock()
		if !ok {
			log.Printf(`{"level":"warn","msg":"sse: no receiver bound","streamId":%d,"kind":%q}`, streamID, f.Kind)
			return
		}
		sink(f)
	}
}

// SetThrottle registers fn as the throttle-direction callback for
// streamID, replacing any previous registration.
func (r *Router) SetThrottle(streamID uint64, fn sse.ThrottleFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.throttles[streamID] = fn
}

// ClearThrottle removes the throttle-direction callback for streamID.
func (r *Router) ClearThrottle(streamID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.throttles, streamID)
}

// Throttle looks up and invokes the registered throttle callback for
// streamID, if any. Transports call this to deliver WINDOW/RESET/
// CHALLENGE frames into the core.
func (r *Router) Throttle(streamID uint64, f *frame.Frame) bool {
	r.mu.Lock()
	fn, ok := r.throttles[streamID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	fn(f)
	return true
}
