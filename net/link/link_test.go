package link

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"nowlink/datamodel/peer"
)

var (
	addrA = peer.HardwareAddr{0x02, 0, 0, 0, 0, 0x0A}
	addrB = peer.HardwareAddr{0x02, 0, 0, 0, 0, 0x0B}
	addrC = peer.HardwareAddr{0x02, 0, 0, 0, 0, 0x0C}
)

type recorder struct {
	frames      chan Frame
	completions chan Completion
}

func newRecorder() *recorder {
	return &recorder{
		frames:      make(chan Frame, 16),
		completions: make(chan Completion, 16),
	}
}

func (r *recorder) HandleFrame(f Frame)           { r.frames <- f }
func (r *recorder) HandleCompletion(c Completion) { r.completions <- c }

func (r *recorder) frame(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-r.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func (r *recorder) completion(t *testing.T) Completion {
	t.Helper()
	select {
	case c := <-r.completions:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
	return Completion{}
}

func (r *recorder) noFrame(t *testing.T) {
	t.Helper()
	select {
	case f := <-r.frames:
		t.Fatalf("unexpected frame from %s", f.Source)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFrameEncodeDecode(t *testing.T) {
	raw := encodeFrame(addrB, addrA, []byte("hello"))
	if len(raw) != HeaderSize+5 {
		t.Fatalf("unexpected frame length %d", len(raw))
	}
	dst, src, payload, ok := decodeFrame(raw)
	if !ok || dst != addrB || src != addrA || !bytes.Equal(payload, []byte("hello")) {
		t.Fatalf("decode mismatch: %s %s %q %v", dst, src, payload, ok)
	}
	if _, _, _, ok := decodeFrame(raw[:HeaderSize-1]); ok {
		t.Fatal("short frame accepted")
	}
}

func TestAcceptFiltering(t *testing.T) {
	b := newBase(addrA, 1)

	cases := []struct {
		name string
		raw  []byte
		want bool
	}{
		{"unicast to us", encodeFrame(addrA, addrB, []byte{1}), true},
		{"broadcast", encodeFrame(peer.Broadcast, addrB, []byte{1}), true},
		{"unicast to someone else", encodeFrame(addrC, addrB, []byte{1}), false},
		{"our own broadcast", encodeFrame(peer.Broadcast, addrA, []byte{1}), false},
		{"too short", []byte{1, 2, 3}, false},
	}

	for _, c := range cases {
		f, ok := b.accept(c.raw)
		if ok != c.want {
			t.Errorf("%s: accepted=%v, want %v", c.name, ok, c.want)
		}
		if ok && f.Source != addrB {
			t.Errorf("%s: unexpected source %s", c.name, f.Source)
		}
	}
}

func TestAcceptCopiesPayload(t *testing.T) {
	b := newBase(addrA, 1)
	raw := encodeFrame(addrA, addrB, []byte{1, 2, 3})
	f, ok := b.accept(raw)
	if !ok {
		t.Fatal("frame rejected")
	}
	raw[HeaderSize] = 9
	if f.Data[0] != 1 {
		t.Fatal("frame data aliases the read buffer")
	}
}

func TestEnqueueErrors(t *testing.T) {
	b := newBase(addrA, 1)

	if err := b.Unicast(addrB, []byte{1}); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
	if err := b.Broadcast(make([]byte, MaxPayload+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	if err := b.AddPeer(addrB); err != nil {
		t.Fatal(err)
	}
	if err := b.Unicast(addrB, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if err := b.Broadcast([]byte{1}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	b.markClosed()
	if err := b.Broadcast([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.AddPeer(addrC); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestGenerateHardwareAddr(t *testing.T) {
	for i := 0; i < 32; i++ {
		a, err := GenerateHardwareAddr()
		if err != nil {
			t.Fatal(err)
		}
		if a[0]&0x02 == 0 {
			t.Fatalf("%s is not locally administered", a)
		}
		if a[0]&0x01 != 0 {
			t.Fatalf("%s is a multicast address", a)
		}
	}
}

func TestLoopbackBroadcastAndUnicast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	la, lb, lc := hub.Attach(addrA, 8), hub.Attach(addrB, 8), hub.Attach(addrC, 8)
	ra, rb, rc := newRecorder(), newRecorder(), newRecorder()

	go la.Run(ctx, ra)
	go lb.Run(ctx, rb)
	go lc.Run(ctx, rc)

	if err := la.Broadcast([]byte("beacon")); err != nil {
		t.Fatal(err)
	}
	if c := ra.completion(t); c.Status != StatusSuccess || c.Destination != peer.Broadcast {
		t.Fatalf("unexpected completion %+v", c)
	}
	for _, r := range []*recorder{rb, rc} {
		f := r.frame(t)
		if f.Source != addrA || string(f.Data) != "beacon" {
			t.Fatalf("unexpected frame %+v", f)
		}
	}
	ra.noFrame(t)

	if err := lb.AddPeer(addrA); err != nil {
		t.Fatal(err)
	}
	if err := lb.Unicast(addrA, []byte("ack")); err != nil {
		t.Fatal(err)
	}
	if f := ra.frame(t); f.Source != addrB || string(f.Data) != "ack" {
		t.Fatalf("unexpected frame %+v", f)
	}
	rc.noFrame(t)
}

func TestLoopbackUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	la := hub.Attach(addrA, 8)
	ra := newRecorder()
	go la.Run(ctx, ra)

	hub.SetUnreachable(addrB, true)
	if err := la.AddPeer(addrB); err != nil {
		t.Fatal(err)
	}
	if err := la.Unicast(addrB, []byte{1}); err != nil {
		t.Fatal(err)
	}

	c := ra.completion(t)
	if c.Status != StatusFailure || c.Destination != addrB || !errors.Is(c.Err, ErrUnreachable) {
		t.Fatalf("unexpected completion %+v", c)
	}
}

func TestLoopbackRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewHub().Attach(addrA, 1)

	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx, newRecorder()) }()
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReadBackoff(t *testing.T) {
	var b readBackoff
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		if !b.wait(context.Background(), done) {
			t.Fatal("backoff returned early")
		}
	}
	if b.delay != 4*minReadBackoff {
		t.Fatalf("unexpected delay %s", b.delay)
	}

	b.reset()
	if b.delay != 0 {
		t.Fatal("reset did not clear the delay")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	b.delay = maxReadBackoff
	if b.wait(ctx, done) {
		t.Fatal("expected wait to stop on a cancelled context")
	}
	if time.Since(start) >= maxReadBackoff {
		t.Fatal("cancelled wait slept")
	}

	close(done)
	if b.wait(context.Background(), done) {
		t.Fatal("expected wait to stop on a closed link")
	}
	if b.delay != maxReadBackoff {
		t.Fatalf("delay not capped: %s", b.delay)
	}
}
