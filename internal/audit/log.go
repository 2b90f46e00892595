// Package audit records subscription lifecycle events (opened, closed,
// rejected) as structured log lines distinct from the request-timing
// logs in internal/obs, so operators can reconstruct who subscribed to
// what without re-deriving it from request logs.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ssegate.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request context and
// the subscription's authorization claim (§3 DATA MODEL).
func LogEvent(ctx context.Context, event string, authorization uint64, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":            time.Now().UTC().Format(time.RFC3339Nano),
		"type":          "audit",
		"event":         event,
		"authorization": authorization,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
