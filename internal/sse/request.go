package sse

import (
	"regexp"
	"strconv"
	"strings"

	"ssegate.io/internal/frame"
)

var pathQueryRe = regexp.MustCompile(`^(?P<path>[^?]*)(?P<query>\?.*)$`)
var lastEventIDParamRe = regexp.MustCompile(`(\?|&)lastEventId=([^&]*)(&|$)`)

// FoldHeaders folds duplicate-named headers into a single value joined
// by ", " in the order the duplicates appear. The result is a map, so
// the order of distinct header names is not kept.
func FoldHeaders(headers []frame.Header) map[string]string {
	folded := make(map[string]string, len(headers))
	for _, h := range headers {
		if existing, ok := folded[h.Name]; ok {
			folded[h.Name] = existing + ", " + h.Value
		} else {
			folded[h.Name] = h.Value
		}
	}
	return folded
}

// ParsedRequest is the (pathInfo, lastEventId) pair RequestParser
// produces from an HTTP BEGIN extension.
type ParsedRequest struct {
	PathInfo    *string
	LastEventID *string
}

// ParseRequest extracts :path and last-event-id, and scrubs every
// lastEventId query parameter out of the path. The first one's
// percent-decoded value is used only when no last-event-id header is
// present.
func ParseRequest(ext *frame.HTTPBeginExt) ParsedRequest {
	if ext == nil {
		return ParsedRequest{}
	}
	folded := FoldHeaders(ext.Headers)

	var result ParsedRequest
	if v, ok := folded[":path"]; ok {
		result.PathInfo = &v
	}
	if v, ok := folded["last-event-id"]; ok {
		result.LastEventID = &v
	}

	if result.PathInfo == nil {
		return result
	}

	m := pathQueryRe.FindStringSubmatch(*result.PathInfo)
	if m == nil {
		return result
	}
	path := m[1]
	query := m[2]

	newQuery := lastEventIDParamRe.ReplaceAllStringFunc(query, func(match string) string {
		sub := lastEventIDParamRe.FindStringSubmatch(match)
		leading, value, trailing := sub[1], sub[2], sub[3]
		if result.LastEventID == nil {
			decoded := percentDecodeIfNeeded(value)
			result.LastEventID = &decoded
		}
		if trailing == "" {
			return ""
		}
		return leading
	})

	combined := path + newQuery
	result.PathInfo = &combined
	return result
}

// percentDecodeIfNeeded percent-decodes s as UTF-8 only when it
// contains a '%'; otherwise it is returned unchanged. Once triggered,
// '+' is also decoded to a space, matching the application/
// x-www-form-urlencoded convention a query-parameter decoder applies.
func percentDecodeIfNeeded(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '%' && i+2 < len(s):
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
			b.WriteByte(s[i])
		case s[i] == '+':
			b.WriteByte(' ')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// AcceptsTimestamp reports whether the first "accept" header of an HTTP
// BEGIN extension contains the ext=timestamp token; later duplicate
// accept headers are not examined.
func AcceptsTimestamp(ext *frame.HTTPBeginExt) bool {
	if ext == nil {
		return false
	}
	accept, ok := ext.Get("accept")
	if !ok {
		return false
	}
	for _, part := range strings.Split(accept, ";") {
		if strings.TrimSpace(part) == "ext=timestamp" {
			return true
		}
	}
	return false
}
