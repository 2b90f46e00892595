package sse

import (
	"testing"

	"ssegate.io/internal/frame"
)

func newTestFactory() (*Factory, *fakeRouter, *fakeIDs) {
	router := newFakeRouter()
	ids := newFakeIDs(100)
	f := NewFactory(router, ids, newFakePool(), NewCorrelations(), Config{}, nil)
	return f, router, ids
}

func beginFrame(streamID, routeID uint64, headers ...frame.Header) *frame.Frame {
	return &frame.Frame{
		Kind:      frame.Begin,
		StreamID:  streamID,
		RouteID:   routeID,
		HTTPBegin: &frame.HTTPBeginExt{Headers: headers},
	}
}

func TestNewStreamRejectsNonBegin(t *testing.T) {
	f, _, _ := newTestFactory()
	if _, ok := f.NewStream(&frame.Frame{Kind: frame.Data}); ok {
		t.Fatal("expected non-BEGIN frame to be rejected")
	}
}

func TestCorsPreflightShortCircuitsWith204(t *testing.T) {
	f, router, _ := newTestFactory()
	begin := beginFrame(1, 7,
		frame.Header{Name: ":method", Value: "OPTIONS"},
		frame.Header{Name: "access-control-request-method", Value: "GET"},
	)

	dispatcher, ok := f.NewStream(begin)
	if !ok {
		t.Fatal("expected preflight to be classified")
	}
	if _, isNoop := dispatcher.(noopDispatcher); !isNoop {
		t.Fatal("expected a noop dispatcher for a short-circuited preflight")
	}

	replyFrames := router.framesFor(0) // acceptReplyID = SupplyReplyID(1) = 0
	if len(replyFrames) != 2 {
		t.Fatalf("expected BEGIN+END on the reply id, got %d frames", len(replyFrames))
	}
	if replyFrames[0].Kind != frame.Begin || replyFrames[1].Kind != frame.End {
		t.Fatalf("unexpected frame kinds: %v, %v", replyFrames[0].Kind, replyFrames[1].Kind)
	}
	status, _ := replyFrames[0].HTTPBegin.Get(":status")
	if status != "204" {
		t.Fatalf("expected 204 status, got %q", status)
	}

	ackFrames := router.framesFor(1)
	if len(ackFrames) != 1 || ackFrames[0].Kind != frame.Window || ackFrames[0].Credit != 0 {
		t.Fatalf("expected a zero-credit WINDOW ack on the initial id, got %+v", ackFrames)
	}
}

func TestNonGETRejectedWith405(t *testing.T) {
	f, router, _ := newTestFactory()
	begin := beginFrame(1, 7, frame.Header{Name: ":method", Value: "POST"})

	if _, ok := f.NewStream(begin); !ok {
		t.Fatal("expected 405 path to be classified")
	}
	replyFrames := router.framesFor(0)
	status, _ := replyFrames[0].HTTPBegin.Get(":status")
	if status != "405" {
		t.Fatalf("expected 405 status, got %q", status)
	}
}

func TestMissingHTTPExtensionRejectedWith405(t *testing.T) {
	f, router, _ := newTestFactory()
	begin := &frame.Frame{Kind: frame.Begin, StreamID: 1, RouteID: 7}

	if _, ok := f.NewStream(begin); !ok {
		t.Fatal("expected the 405 path to be classified, not a silent drop")
	}
	replyFrames := router.framesFor(0)
	status, _ := replyFrames[0].HTTPBegin.Get(":status")
	if status != "405" {
		t.Fatalf("expected 405 status, got %q", status)
	}
}

func TestRouteNotFoundReturnsFalse(t *testing.T) {
	f, _, _ := newTestFactory()
	begin := beginFrame(1, 999, frame.Header{Name: ":method", Value: "GET"}, frame.Header{Name: ":path", Value: "/x"})

	if _, ok := f.NewStream(begin); ok {
		t.Fatal("expected no route to resolve for an unconfigured route id")
	}
}

func TestHappyPathWiresBothHandlers(t *testing.T) {
	f, router, _ := newTestFactory()
	router.addRoute(7, Route{ID: 7, PathInfo: "/streams/42"}, 0)

	begin := beginFrame(1, 7,
		frame.Header{Name: ":method", Value: "GET"},
		frame.Header{Name: ":path", Value: "/streams/42"},
	)
	begin.Authorization = 0

	dispatcher, ok := f.NewStream(begin)
	if !ok {
		t.Fatal("expected the subscription to be accepted")
	}
	if _, isNoop := dispatcher.(noopDispatcher); isNoop {
		t.Fatal("expected a real InitialHandler dispatcher, not noop")
	}

	// connectInitialID is the first id the fakeIDs supplier mints: 101.
	appFrames := router.framesFor(101)
	if len(appFrames) != 1 || appFrames[0].Kind != frame.Begin {
		t.Fatalf("expected one BEGIN forwarded to the application, got %+v", appFrames)
	}
	if appFrames[0].SSEBegin == nil || appFrames[0].SSEBegin.PathInfo == nil || *appFrames[0].SSEBegin.PathInfo != "/streams/42" {
		t.Fatalf("expected pathInfo carried on the SSE BEGIN, got %+v", appFrames[0].SSEBegin)
	}

	// connectReplyID = SupplyReplyID(101) = 100, the Correlations key.
	if _, ok := f.Correlations.Take(100); !ok {
		t.Fatal("expected a correlation entry keyed by connectReplyID")
	}

	if ok := router.throttle(101, &frame.Frame{Kind: frame.Window, Credit: 10}); !ok {
		t.Fatal("expected a throttle callback registered under connectInitialID")
	}
	// acceptReplyID = SupplyReplyID(1) = 0.
	if ok := router.throttle(0, &frame.Frame{Kind: frame.Window, Credit: 10}); !ok {
		t.Fatal("expected a throttle callback registered under acceptReplyID")
	}
}
