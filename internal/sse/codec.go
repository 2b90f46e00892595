package sse

import (
	"strconv"
)

// EventFlags are the two independent fragment markers a DATA frame's
// encoding carries: Init marks the first fragment of an event, Fin the
// last. A single-fragment event sets both.
type EventFlags uint8

const (
	FlagInit EventFlags = 1 << 0
	FlagFin  EventFlags = 1 << 1
)

// Event is the pure input to EncodeEvent: everything needed to produce
// one SSE wire fragment.
type Event struct {
	Flags     EventFlags
	ID        []byte
	Type      []byte
	Timestamp int64
	Data      []byte
	Comment   []byte
}

// EncodeEvent renders ev to its on-wire SSE byte sequence: comment,
// id, event, timestamp and data lines in that order, each
// newline-terminated, with the blank line that closes the logical
// event emitted only when FlagFin is set.
func EncodeEvent(ev Event) []byte {
	var out []byte

	if len(ev.Comment) > 0 {
		out = append(out, ':')
		out = append(out, ev.Comment...)
		out = append(out, '\n')
	}
	if len(ev.ID) > 0 {
		out = append(out, "id:"...)
		out = append(out, ev.ID...)
		out = append(out, '\n')
	}
	if len(ev.Type) > 0 {
		out = append(out, "event:"...)
		out = append(out, ev.Type...)
		out = append(out, '\n')
	}
	if ev.Timestamp != 0 {
		out = append(out, "timestamp:"...)
		out = strconv.AppendInt(out, ev.Timestamp, 10)
		out = append(out, '\n')
	}
	if ev.Data != nil {
		out = append(out, "data:"...)
		out = append(out, ev.Data...)
		out = append(out, '\n')
	}
	if ev.Flags&FlagFin != 0 {
		out = append(out, '\n')
	}
	return out
}

// MaximumHeaderSize is the upper bound on SSE per-event overhead the
// adapter reserves when computing the padding it announces to the
// application: 5 ("data:") + 3 ("id:") + 255 (max id) + 6 ("event:") +
// 16 (max type) + 3 (one newline each after the id, event and data
// lines).
const MaximumHeaderSize = 5 + 3 + 255 + 6 + 16 + 3
