package node

import (
	"nowlink/datamodel/peer"

	log "github.com/sirupsen/logrus"
)

// Events is the observation boundary of the protocol. Implementations must be safe for concurrent use: the receive
// path and the completion path call them from different goroutines.
type Events interface {
	PeerAdded(peer.Record)
	DataReceived(senderID uint8, payload float32)
	AckReceived(senderID uint8)
	SendFailed(dst peer.HardwareAddr)
}

// LogEvents reports protocol events through logrus.
type LogEvents struct{}

func (LogEvents) PeerAdded(r peer.Record) {
	log.WithField("peer", r.Address.String()).Infof("Added peer ID %d", r.LogicalID)
}

func (LogEvents) DataReceived(senderID uint8, payload float32) {
	log.WithField("sender", senderID).Infof("Received data %f from ID %d", payload, senderID)
}

func (LogEvents) AckReceived(senderID uint8) {
	log.WithField("sender", senderID).Infof("Received ACK from ID %d", senderID)
}

func (LogEvents) SendFailed(dst peer.HardwareAddr) {
	log.WithField("peer", dst.String()).Warnf("Send failed to %s", dst)
}

// MultiEvents fans every event out to all of its members in order.
type MultiEvents []Events

func (m MultiEvents) PeerAdded(r peer.Record) {
	for _, e := range m {
		e.PeerAdded(r)
	}
}

func (m MultiEvents) DataReceived(senderID uint8, payload float32) {
	for _, e := range m {
		e.DataReceived(senderID, payload)
	}
}

func (m MultiEvents) AckReceived(senderID uint8) {
	for _, e := range m {
		e.AckReceived(senderID)
	}
}

func (m MultiEvents) SendFailed(dst peer.HardwareAddr) {
	for _, e := range m {
		e.SendFailed(dst)
	}
}
