package bufpool

import "testing"

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := New(64, 2)
	slot, ok := p.Acquire(1)
	if !ok {
		t.Fatal("expected acquire to succeed under capacity")
	}
	buf := p.Buffer(slot)
	if len(buf) != 64 {
		t.Fatalf("expected a 64-byte buffer, got %d", len(buf))
	}
	copy(buf, []byte("hello"))
	p.Release(slot)

	slot2, ok := p.Acquire(2)
	if !ok {
		t.Fatal("expected acquire to succeed after release")
	}
	p.Release(slot2)
}

func TestAcquireExhaustion(t *testing.T) {
	p := New(16, 1)
	slot, ok := p.Acquire(1)
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if _, ok := p.Acquire(2); ok {
		t.Fatal("expected second acquire to fail: pool capacity is 1")
	}
	p.Release(slot)
	if _, ok := p.Acquire(3); !ok {
		t.Fatal("expected acquire to succeed after release frees capacity")
	}
}
