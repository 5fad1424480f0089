package link

import (
	"context"
	"errors"
	"sync"

	"nowlink/datamodel/peer"
)

var ErrUnreachable = errors.New("destination unreachable")

var _ Link = (*LoopbackLink)(nil)

// Hub is an in-process broadcast medium. Links attached to the same hub hear each other's frames.
type Hub struct {
	mu          sync.RWMutex
	links       []*LoopbackLink
	unreachable map[peer.HardwareAddr]bool
}

func NewHub() *Hub {
	return &Hub{unreachable: make(map[peer.HardwareAddr]bool)}
}

// Attach creates a new link on the hub.
func (h *Hub) Attach(local peer.HardwareAddr, queueSize int) *LoopbackLink {
	b := newBase(local, queueSize)
	l := &LoopbackLink{
		base: b,
		hub:  h,
		rx:   make(chan []byte, cap(b.txq)),
	}

	h.mu.Lock()
	h.links = append(h.links, l)
	h.mu.Unlock()
	return l
}

// SetUnreachable makes unicast transmissions to addr fail, as if the destination never acknowledged them.
func (h *Hub) SetUnreachable(addr peer.HardwareAddr, unreachable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unreachable[addr] = unreachable
}

func (h *Hub) deliver(dst peer.HardwareAddr, frame []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !dst.IsBroadcast() && h.unreachable[dst] {
		return ErrUnreachable
	}

	for _, l := range h.links {
		// A full receiver drops the frame, like a busy radio
		select {
		case l.rx <- frame:
		default:
		}
	}
	return nil
}

type LoopbackLink struct {
	*base
	hub *Hub
	rx  chan []byte
}

func (l *LoopbackLink) Run(ctx context.Context, h Handler) error {
	errc := make(chan error, 1)
	go func() {
		errc <- l.transmit(ctx, h, func(frame []byte) error {
			dst, _, _, _ := decodeFrame(frame)
			return l.hub.deliver(dst, frame)
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return <-errc
		case <-l.done:
			return <-errc
		case raw := <-l.rx:
			if f, ok := l.accept(raw); ok {
				h.HandleFrame(f)
			}
		}
	}
}

func (l *LoopbackLink) Close() error {
	l.markClosed()
	return nil
}
