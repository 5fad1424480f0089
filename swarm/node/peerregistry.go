package node

import (
	"sync"

	"nowlink/datamodel/peer"
)

const DefaultMaxPeers = 10

type AddResult int

const (
	Added AddResult = iota
	AlreadyPresent
	Full
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already present"
	default:
		return "full"
	}
}

// PeerRegistry is the bounded table of known peers, in discovery order. Peers are never removed.
type PeerRegistry struct {
	mu       sync.RWMutex
	capacity int
	peers    []peer.Record
	index    map[peer.HardwareAddr]int
}

func NewPeerRegistry(capacity int) *PeerRegistry {
	if capacity < 1 {
		capacity = 1
	}
	return &PeerRegistry{
		capacity: capacity,
		peers:    make([]peer.Record, 0, capacity),
		index:    make(map[peer.HardwareAddr]int, capacity),
	}
}

func (r *PeerRegistry) Contains(addr peer.HardwareAddr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[addr]
	return ok
}

// TryAdd admits a peer. A known address is never updated, even if the logical id differs.
func (r *PeerRegistry) TryAdd(addr peer.HardwareAddr, id uint8) AddResult {
	res, _ := r.Admit(addr, id, nil)
	return res
}

// Admit is TryAdd with a registration step run under the registry lock. The record is only committed when register
// succeeds; on failure the registry is left untouched and the error is returned with Full.
func (r *PeerRegistry) Admit(addr peer.HardwareAddr, id uint8, register func(peer.HardwareAddr) error) (AddResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[addr]; ok {
		return AlreadyPresent, nil
	}
	if len(r.peers) >= r.capacity {
		return Full, nil
	}
	if register != nil {
		if err := register(addr); err != nil {
			return Full, err
		}
	}

	r.index[addr] = len(r.peers)
	r.peers = append(r.peers, peer.Record{Address: addr, LogicalID: id})
	return Added, nil
}

// Get returns the record for a known address.
func (r *PeerRegistry) Get(addr peer.HardwareAddr) (peer.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[addr]
	if !ok {
		return peer.Record{}, false
	}
	return r.peers[i], true
}

// Peers returns a snapshot of the registry in insertion order.
func (r *PeerRegistry) Peers() []peer.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]peer.Record, len(r.peers))
	copy(out, r.peers)
	return out
}

func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *PeerRegistry) Capacity() int {
	return r.capacity
}
