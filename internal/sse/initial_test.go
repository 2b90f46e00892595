package sse

import (
	"testing"

	"ssegate.io/internal/frame"
)

func newTestInitial() (*InitialHandler, func() []*frame.Frame, func() []*frame.Frame, *Correlations, *fakeRouter) {
	router := newFakeRouter()
	correlations := NewCorrelations()
	netSink, netFrames := captureSink()
	appSink, appFrames := captureSink()
	h := newInitialHandler(1, 2, netSink, appSink, router, correlations, 50, 51)
	return h, netFrames, appFrames, correlations, router
}

func TestInitialEndForwardsToApplication(t *testing.T) {
	h, _, appFrames, _, _ := newTestInitial()
	h.Stream(&frame.Frame{Kind: frame.End, TraceID: 9})

	frames := appFrames()
	if len(frames) != 1 || frames[0].Kind != frame.End || frames[0].StreamID != 2 {
		t.Fatalf("expected END forwarded on connectInitialID, got %+v", frames)
	}
}

func TestInitialAbortClearsPendingCorrelation(t *testing.T) {
	h, _, appFrames, correlations, router := newTestInitial()
	correlations.Put(50, &ReplyHandler{})
	router.SetThrottle(51, func(*frame.Frame) {})

	h.Stream(&frame.Frame{Kind: frame.Abort, TraceID: 1})

	frames := appFrames()
	if len(frames) != 1 || frames[0].Kind != frame.Abort {
		t.Fatalf("expected ABORT forwarded, got %+v", frames)
	}
	if _, ok := correlations.Take(50); ok {
		t.Fatal("expected the pending correlation entry removed")
	}
	if ok := router.throttle(51, &frame.Frame{Kind: frame.Window}); ok {
		t.Fatal("expected the reply handler's throttle registration cleared")
	}
}

func TestInitialAbortWithNoPendingCorrelationIsANoop(t *testing.T) {
	h, _, appFrames, _, _ := newTestInitial()
	h.Stream(&frame.Frame{Kind: frame.Abort, TraceID: 1})

	if len(appFrames()) != 1 {
		t.Fatalf("expected just the forwarded ABORT, got %+v", appFrames())
	}
}

func TestInitialUnexpectedKindResetsNetwork(t *testing.T) {
	h, netFrames, _, _, _ := newTestInitial()
	h.Stream(&frame.Frame{Kind: frame.Data, TraceID: 3})

	frames := netFrames()
	if len(frames) != 1 || frames[0].Kind != frame.Reset || frames[0].StreamID != 1 {
		t.Fatalf("expected RESET on acceptInitialID, got %+v", frames)
	}
}

func TestInitialThrottleWindowMirrorsChallengeBit(t *testing.T) {
	h, netFrames, _, _, _ := newTestInitial()
	h.Throttle(&frame.Frame{Kind: frame.Window, Credit: 5, Padding: 2, GroupID: 7})

	frames := netFrames()
	if len(frames) != 1 {
		t.Fatalf("expected one WINDOW forwarded, got %+v", frames)
	}
	f := frames[0]
	if f.StreamID != 1 || f.Credit != 5 || f.Padding != 2 || f.GroupID != 7 {
		t.Fatalf("expected WINDOW fields mirrored, got %+v", f)
	}
	if f.Capabilities&frame.ChallengeBit() == 0 {
		t.Fatal("expected the challenge capability bit set on the mirrored WINDOW")
	}
}

func TestInitialThrottleResetForwards(t *testing.T) {
	h, netFrames, _, _, _ := newTestInitial()
	h.Throttle(&frame.Frame{Kind: frame.Reset, TraceID: 4})

	frames := netFrames()
	if len(frames) != 1 || frames[0].Kind != frame.Reset {
		t.Fatalf("expected RESET forwarded, got %+v", frames)
	}
}
