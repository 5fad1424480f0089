// Package metrics exposes protocol events as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"nowlink/datamodel/peer"
	"nowlink/swarm/node"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"
)

const DefaultNamespace = "nowlink"

var _ node.Events = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for a node.
type Metrics struct {
	PeersAddedTotal   prometheus.Counter
	DataReceivedTotal prometheus.Counter
	AcksReceivedTotal prometheus.Counter
	SendFailuresTotal prometheus.Counter
	PeerCount         prometheus.Gauge
	LastPayload       prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PeersAddedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_added_total",
			Help:      "Total number of peers admitted to the registry",
		}),
		DataReceivedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_received_total",
			Help:      "Total number of data messages received",
		}),
		AcksReceivedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_received_total",
			Help:      "Total number of ACK messages received",
		}),
		SendFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total number of transmissions reported as failed by the link",
		}),
		PeerCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of peers in the registry",
		}),
		LastPayload: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_payload",
			Help:      "Payload of the most recently received data message",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) PeerAdded(peer.Record) {
	m.PeersAddedTotal.Inc()
	m.PeerCount.Inc()
}

func (m *Metrics) DataReceived(senderID uint8, payload float32) {
	m.DataReceivedTotal.Inc()
	m.LastPayload.Set(float64(payload))
}

func (m *Metrics) AckReceived(senderID uint8) {
	m.AcksReceivedTotal.Inc()
}

func (m *Metrics) SendFailed(peer.HardwareAddr) {
	m.SendFailuresTotal.Inc()
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
