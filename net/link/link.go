// Package link emulates the shared broadcast radio link on top of IP transports.
//
// Every link frame carries a small header <dst:6><src:6> in front of the payload, so a receiver can drop frames that are
// not addressed to it and frames it sent itself. Sends are fire-and-forget: they are queued and their outcome is
// reported later through Handler.HandleCompletion.
package link

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"nowlink/datamodel/peer"
)

const (
	// HeaderSize is the length of the link-layer header.
	HeaderSize = 2 * peer.AddrLen

	// MaxPayload mirrors the payload limit of the radio link.
	MaxPayload = 250

	DefaultQueueSize = 64

	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
)

var (
	ErrClosed         = errors.New("link is closed")
	ErrQueueFull      = errors.New("transmit queue is full")
	ErrPeerNotFound   = errors.New("destination is not registered")
	ErrFrameTooLarge  = errors.New("payload exceeds link limit")
	ErrNoHardwareAddr = errors.New("no hardware address available")
)

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Frame is an inbound payload together with the link-level sender.
type Frame struct {
	Source peer.HardwareAddr
	Data   []byte
}

// Completion is the outcome of one attempted transmission.
type Completion struct {
	Destination peer.HardwareAddr
	Status      Status
	Err         error // Transport error for StatusFailure, nil otherwise
}

// Handler receives link events. Both methods are called from the link's own goroutines, one event at a time per method.
type Handler interface {
	HandleFrame(Frame)
	HandleCompletion(Completion)
}

type Link interface {
	// LocalAddress returns the hardware address of this node on the link.
	LocalAddress() peer.HardwareAddr

	// AddPeer registers a unicast destination. It must be called before Unicast to that address.
	AddPeer(peer.HardwareAddr) error

	// Broadcast queues a payload for every node on the link.
	Broadcast([]byte) error

	// Unicast queues a payload for a single registered destination.
	Unicast(peer.HardwareAddr, []byte) error

	// Run delivers inbound frames and transmit completions to h until the context is cancelled.
	Run(ctx context.Context, h Handler) error

	Close() error
}

type outbound struct {
	dst   peer.HardwareAddr
	frame []byte
}

// base holds the state shared by all drivers: local identity, registered destinations and the transmit queue.
type base struct {
	local peer.HardwareAddr

	mu    sync.RWMutex
	peers map[peer.HardwareAddr]struct{}

	txq       chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

func newBase(local peer.HardwareAddr, queueSize int) *base {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &base{
		local: local,
		peers: make(map[peer.HardwareAddr]struct{}),
		txq:   make(chan outbound, queueSize),
		done:  make(chan struct{}),
	}
}

func (b *base) LocalAddress() peer.HardwareAddr {
	return b.local
}

func (b *base) AddPeer(addr peer.HardwareAddr) error {
	if b.isClosed() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[addr] = struct{}{}
	return nil
}

func (b *base) hasPeer(addr peer.HardwareAddr) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.peers[addr]
	return ok
}

func (b *base) Broadcast(data []byte) error {
	return b.enqueue(peer.Broadcast, data)
}

func (b *base) Unicast(dst peer.HardwareAddr, data []byte) error {
	if !dst.IsBroadcast() && !b.hasPeer(dst) {
		return ErrPeerNotFound
	}
	return b.enqueue(dst, data)
}

func (b *base) enqueue(dst peer.HardwareAddr, data []byte) error {
	if len(data) > MaxPayload {
		return ErrFrameTooLarge
	}
	if b.isClosed() {
		return ErrClosed
	}

	select {
	case b.txq <- outbound{dst: dst, frame: encodeFrame(dst, b.local, data)}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *base) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// markClosed reports whether this call performed the close.
func (b *base) markClosed() bool {
	closed := false
	b.closeOnce.Do(func() {
		close(b.done)
		closed = true
	})
	return closed
}

// transmit drains the queue until the link is closed or ctx is done, reporting each outcome to h.
func (b *base) transmit(ctx context.Context, h Handler, write func([]byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case o := <-b.txq:
			h.HandleCompletion(completionFor(o.dst, write(o.frame)))
		}
	}
}

// accept parses a raw link frame and decides whether it is meant for this node.
func (b *base) accept(raw []byte) (Frame, bool) {
	dst, src, payload, ok := decodeFrame(raw)
	if !ok {
		return Frame{}, false
	}
	if src == b.local {
		return Frame{}, false
	}
	if dst != b.local && !dst.IsBroadcast() {
		return Frame{}, false
	}

	// The read buffer is reused by the drivers
	data := make([]byte, len(payload))
	copy(data, payload)
	return Frame{Source: src, Data: data}, true
}

// readBackoff spaces out retries after consecutive read errors. The delay doubles up to maxReadBackoff and is reset
// by the next successful read.
type readBackoff struct {
	delay time.Duration
}

func (r *readBackoff) reset() {
	r.delay = 0
}

// wait sleeps for the next delay and reports false if ctx or done ended first.
func (r *readBackoff) wait(ctx context.Context, done <-chan struct{}) bool {
	r.delay *= 2
	if r.delay == 0 {
		r.delay = minReadBackoff
	}
	if r.delay > maxReadBackoff {
		r.delay = maxReadBackoff
	}

	t := time.NewTimer(r.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-done:
		return false
	case <-t.C:
		return true
	}
}

func completionFor(dst peer.HardwareAddr, err error) Completion {
	if err != nil {
		return Completion{Destination: dst, Status: StatusFailure, Err: err}
	}
	return Completion{Destination: dst, Status: StatusSuccess}
}

func encodeFrame(dst, src peer.HardwareAddr, payload []byte) []byte {
	b := make([]byte, HeaderSize+len(payload))
	copy(b[0:peer.AddrLen], dst[:])
	copy(b[peer.AddrLen:HeaderSize], src[:])
	copy(b[HeaderSize:], payload)
	return b
}

func decodeFrame(b []byte) (dst, src peer.HardwareAddr, payload []byte, ok bool) {
	if len(b) < HeaderSize {
		return dst, src, nil, false
	}
	copy(dst[:], b[0:peer.AddrLen])
	copy(src[:], b[peer.AddrLen:HeaderSize])
	return dst, src, b[HeaderSize:], true
}

// InterfaceHardwareAddr returns the hardware address of a local network interface.
func InterfaceHardwareAddr(name string) (peer.HardwareAddr, error) {
	var a peer.HardwareAddr
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return a, err
	}
	if len(iface.HardwareAddr) != peer.AddrLen {
		return a, fmt.Errorf("%w: interface %s", ErrNoHardwareAddr, name)
	}
	copy(a[:], iface.HardwareAddr)
	return a, nil
}

// GenerateHardwareAddr returns a random locally administered unicast address.
func GenerateHardwareAddr() (peer.HardwareAddr, error) {
	var a peer.HardwareAddr
	if _, err := rand.Read(a[:]); err != nil {
		return a, err
	}
	a[0] = (a[0] | 0x02) &^ 0x01
	return a, nil
}
