package commands

import (
	"context"
	"nowlink/config"
	"nowlink/datamodel/peer"
	"nowlink/datastore/leveldb"
	"nowlink/metrics"
	"nowlink/net/link"
	"nowlink/swarm/node"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

// resolveHardwareAddr picks the configured address, falling back to the address of the configured interface and then
// to a random one for this run.
func resolveHardwareAddr(cfg *config.Config) (peer.HardwareAddr, error) {
	addr, ok, err := cfg.HardwareAddr()
	if err != nil || ok {
		return addr, err
	}
	if cfg.Link.Interface != "" {
		return link.InterfaceHardwareAddr(cfg.Link.Interface)
	}

	addr, err = link.GenerateHardwareAddr()
	if err != nil {
		return addr, err
	}
	log.Warnf("No hardware address configured, using %s for this run", addr)
	return addr, nil
}

func newLink(cfg *config.Config, local peer.HardwareAddr) (link.Link, error) {
	if cfg.Link.Driver == config.DriverZMQ {
		z, err := link.NewZMQ(local, cfg.Link.Listen, cfg.Link.Endpoints, cfg.Link.QueueSize)
		if err != nil {
			return nil, err
		}
		return z, nil
	}

	u, err := link.ListenUDP(local, cfg.Link.Group, cfg.Link.Interface, cfg.Link.QueueSize)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func RunServe(ctx context.Context, cfg *config.Config) {
	local, err := resolveHardwareAddr(cfg)
	if err != nil {
		log.Fatalf("Failed to resolve hardware address: %v", err)
	}

	// Bring up the link
	l, err := newLink(cfg, local)
	if err != nil {
		log.Fatalf("Failed to create %s link: %v", cfg.Link.Driver, err)
	}
	defer l.Close()

	log.Infof("Link %s up on channel %d as %s", cfg.Link.Driver, cfg.Link.Channel, local)

	// Admission journal
	var journal peer.Journal
	if cfg.DataStore.JournalPath != "" {
		pj, err := leveldb.NewPeerJournal(cfg.DataStore.JournalPath)
		if err != nil {
			log.Fatalf("Failed to open peer journal: %v", err)
		}
		defer pj.Close()
		journal = pj
	}

	// Observability
	events := node.MultiEvents{node.LogEvents{}}
	var m *metrics.Metrics
	if cfg.Metrics.ListenAddress != "" {
		m = metrics.NewMetrics(metrics.DefaultNamespace, prometheus.NewRegistry())
		events = append(events, m)
	}

	// Create the node
	n, err := node.New(node.Options{
		ID:                cfg.Node.ID,
		MaxPeers:          cfg.Protocol.MaxPeers,
		DiscoveryInterval: cfg.Protocol.DiscoveryInterval.Duration,
		DataInterval:      cfg.Protocol.DataInterval.Duration,
		Payload:           cfg.Node.Payload,
	}, l, journal, events)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}

	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return n.Run(cctx)
	})

	if m != nil {
		wg.Go(func() error {
			return m.Serve(cctx, cfg.Metrics.ListenAddress)
		})
	}

	// Run the node
	if err := wg.Wait(); err != nil {
		log.Fatalf("Failed to run node: %v", err)
	}

	log.Info("Node stopped")
}
