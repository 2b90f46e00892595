// Package ids implements the sse.IDSupplier collaborator: a
// process-wide stream- and trace-identifier source derived from
// monotonic ULID entropy, folded down to the u64 the frame model uses.
package ids

import (
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Supplier hands out stream identifiers for SupplyInitialID/SupplyReplyID
// and opaque trace identifiers for SupplyTraceID.
type Supplier struct {
	mu      sync.Mutex
	entropy io.Reader
}

// New returns a Supplier seeded from the current time.
func New() *Supplier {
	return &Supplier{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (s *Supplier) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy)
	// Fold the 128-bit ULID down to 64 bits; the low 8 bytes carry the
	// monotonic random component, which is what makes successive calls
	// distinct even within the same millisecond.
	var v uint64
	for _, b := range id[8:] {
		v = v<<8 | uint64(b)
	}
	return v
}

// SupplyInitialID mints a fresh "initial" stream id: the low bit is
// forced to 1, per the frame model's odd=initial convention. routeID
// is accepted to match the collaborator interface; this implementation
// does not need it to stay globally unique.
func (s *Supplier) SupplyInitialID(routeID uint64) uint64 {
	return s.next() | 1
}

// SupplyReplyID derives the reply-direction pair of streamID by
// clearing its low bit. This is a pure function of streamID rather
// than a fresh allocation, so two parties that both know streamID
// — say, an HTTP front door and the stream-pair core it drives —
// independently compute the same reply id without coordinating.
func (s *Supplier) SupplyReplyID(streamID uint64) uint64 {
	return streamID &^ 1
}

// SupplyTraceID mints an opaque trace identifier with no directional
// meaning.
func (s *Supplier) SupplyTraceID() uint64 {
	return s.next()
}
