package node

import (
	"context"
	"errors"
	"sync"

	"nowlink/datamodel/peer"
	"nowlink/net/link"
)

type sent struct {
	dst  peer.HardwareAddr
	data []byte
}

// fakeLink records every call instead of transmitting.
type fakeLink struct {
	local peer.HardwareAddr

	mu         sync.Mutex
	registered []peer.HardwareAddr
	sends      []sent
	addPeerErr error
	failFor    map[peer.HardwareAddr]bool
}

var errFakeSend = errors.New("fake send failure")

func newFakeLink(local peer.HardwareAddr) *fakeLink {
	return &fakeLink{local: local, failFor: make(map[peer.HardwareAddr]bool)}
}

func (f *fakeLink) LocalAddress() peer.HardwareAddr { return f.local }

func (f *fakeLink) AddPeer(a peer.HardwareAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addPeerErr != nil {
		return f.addPeerErr
	}
	f.registered = append(f.registered, a)
	return nil
}

func (f *fakeLink) Broadcast(b []byte) error {
	return f.Unicast(peer.Broadcast, b)
}

func (f *fakeLink) Unicast(dst peer.HardwareAddr, b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{dst: dst, data: b})
	if f.failFor[dst] {
		return errFakeSend
	}
	return nil
}

func (f *fakeLink) Run(ctx context.Context, h link.Handler) error {
	<-ctx.Done()
	return nil
}

func (f *fakeLink) Close() error { return nil }

func (f *fakeLink) sentFrames() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sent, len(f.sends))
	copy(out, f.sends)
	return out
}

// eventLog records every protocol event.
type eventLog struct {
	mu         sync.Mutex
	added      []peer.Record
	data       []float32
	acks       []uint8
	sendFailed []peer.HardwareAddr
}

func (e *eventLog) PeerAdded(r peer.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added = append(e.added, r)
}

func (e *eventLog) DataReceived(senderID uint8, payload float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data = append(e.data, payload)
}

func (e *eventLog) AckReceived(senderID uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.acks = append(e.acks, senderID)
}

func (e *eventLog) SendFailed(dst peer.HardwareAddr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendFailed = append(e.sendFailed, dst)
}

// memJournal is an in-memory peer.Journal.
type memJournal struct {
	mu      sync.Mutex
	entries []*peer.JournalEntry
	err     error
}

var errNotJournaled = errors.New("not journaled")

func (j *memJournal) Append(e *peer.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) Get(a peer.HardwareAddr) (*peer.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e.Address == a {
			return e, nil
		}
	}
	return nil, errNotJournaled
}

func (j *memJournal) Enumerate() ([]*peer.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*peer.JournalEntry(nil), j.entries...), nil
}
