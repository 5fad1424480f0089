package node

import (
	"context"
	"errors"
	"time"

	"nowlink/datamodel/peer"
	"nowlink/helper/timer"
	"nowlink/net/link"
	"nowlink/swarm/protocol"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultDiscoveryInterval = 10 * time.Second
	DefaultDataInterval      = 5 * time.Second
	DefaultPayload           = 25.5
)

var ErrInvalidIntervals = errors.New("data interval must be shorter than discovery interval")

type Options struct {
	ID                uint8
	MaxPeers          int
	DiscoveryInterval time.Duration
	DataInterval      time.Duration
	Payload           float32
}

type Node struct {
	// Local identity
	ID      uint8
	Address peer.HardwareAddr

	Registry   *PeerRegistry
	Link       link.Link
	Dispatcher *Dispatcher

	discoveryInterval time.Duration
	dataInterval      time.Duration
	payload           float32
}

func New(opts Options, l link.Link, journal peer.Journal, events Events) (*Node, error) {
	if opts.DiscoveryInterval == 0 {
		opts.DiscoveryInterval = DefaultDiscoveryInterval
	}
	if opts.DataInterval == 0 {
		opts.DataInterval = DefaultDataInterval
	}
	if opts.MaxPeers == 0 {
		opts.MaxPeers = DefaultMaxPeers
	}
	if opts.DataInterval >= opts.DiscoveryInterval {
		return nil, ErrInvalidIntervals
	}

	registry := NewPeerRegistry(opts.MaxPeers)

	n := &Node{
		ID:                opts.ID,
		Address:           l.LocalAddress(),
		Registry:          registry,
		Link:              l,
		Dispatcher:        NewDispatcher(opts.ID, l, registry, journal, events),
		discoveryInterval: opts.DiscoveryInterval,
		dataInterval:      opts.DataInterval,
		payload:           opts.Payload,
	}

	log.Infof("I am ID %d at %s, up to %d peers", n.ID, n.Address, registry.Capacity())

	return n, nil
}

// This is run via the RunWithTicker() helper
func (n *Node) broadcastDiscovery(ctx context.Context) error {
	msg := &protocol.Message{Kind: protocol.KindDiscovery, SenderID: n.ID, SenderAddress: n.Address}
	if err := n.Link.Broadcast(msg.Marshal()); err != nil {
		log.Warnf("Failed to broadcast discovery: %v", err)
	}
	return nil
}

// This is run via the RunWithTicker() helper
func (n *Node) broadcastData(ctx context.Context) error {
	peers := n.Registry.Peers()
	if len(peers) == 0 {
		return nil
	}

	msg := &protocol.Message{Kind: protocol.KindData, SenderID: n.ID, SenderAddress: n.Address, Payload: n.payload}
	data := msg.Marshal()
	for _, p := range peers {
		if err := n.Link.Unicast(p.Address, data); err != nil {
			log.Warnf("Failed to send data to ID %d (%s): %v", p.LogicalID, p.Address, err)
		}
	}
	return nil
}

// Run drives the link and both emitters until the context is cancelled.
func (n *Node) Run(ctx context.Context) error {
	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return n.Link.Run(cctx, n.Dispatcher)
	})

	wg.Go(func() error {
		interval := &timer.Interval{
			Duration:  n.discoveryInterval,
			Immediate: true,
		}
		return timer.RunWithTicker(cctx, interval, n.broadcastDiscovery)
	})

	wg.Go(func() error {
		interval := &timer.Interval{
			Duration:  n.dataInterval,
			Immediate: true,
		}
		return timer.RunWithTicker(cctx, interval, n.broadcastData)
	})

	err := wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
