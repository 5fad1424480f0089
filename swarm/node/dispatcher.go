package node

import (
	"time"

	"nowlink/datamodel/peer"
	"nowlink/net/link"
	"nowlink/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

var _ link.Handler = (*Dispatcher)(nil)

// Dispatcher handles inbound frames and transmit completions delivered by the link.
type Dispatcher struct {
	id       uint8
	link     link.Link
	registry *PeerRegistry
	journal  peer.Journal // Optional
	events   Events
	now      func() time.Time
}

func NewDispatcher(id uint8, l link.Link, registry *PeerRegistry, journal peer.Journal, events Events) *Dispatcher {
	if events == nil {
		events = LogEvents{}
	}
	return &Dispatcher{
		id:       id,
		link:     l,
		registry: registry,
		journal:  journal,
		events:   events,
		now:      time.Now,
	}
}

// HandleFrame is called by the link once per inbound frame.
func (d *Dispatcher) HandleFrame(f link.Frame) {
	msg, err := protocol.Decode(f.Data)
	if err != nil {
		// Foreign traffic on the link is expected
		return
	}

	switch msg.Kind {
	case protocol.KindDiscovery:
		d.handleDiscovery(msg)
	case protocol.KindData:
		d.events.DataReceived(msg.SenderID, msg.Payload)
	case protocol.KindAck:
		d.events.AckReceived(msg.SenderID)
	default:
		log.Debugf("Dispatcher: dropping message of unknown kind %s from %s", msg.Kind, msg.SenderAddress)
	}
}

func (d *Dispatcher) handleDiscovery(msg *protocol.Message) {
	res, err := d.registry.Admit(msg.SenderAddress, msg.SenderID, d.link.AddPeer)
	if err != nil {
		log.Errorf("Dispatcher: failed to register %s with the link: %v", msg.SenderAddress, err)
		return
	}
	switch res {
	case AlreadyPresent:
		if known, ok := d.registry.Get(msg.SenderAddress); ok && known.LogicalID != msg.SenderID {
			log.Debugf("Dispatcher: %s announced ID %d, keeping ID %d", msg.SenderAddress, msg.SenderID, known.LogicalID)
		}
		return
	case Full:
		log.Debugf("Dispatcher: discovery from ID %d (%s): %s", msg.SenderID, msg.SenderAddress, res)
		return
	}

	rec := peer.Record{Address: msg.SenderAddress, LogicalID: msg.SenderID}
	d.events.PeerAdded(rec)

	if d.journal != nil {
		entry := &peer.JournalEntry{Address: rec.Address, LogicalID: rec.LogicalID, AdmittedAt: d.now()}
		if err := d.journal.Append(entry); err != nil {
			log.Errorf("Dispatcher: failed to journal %s: %v", rec.Address, err)
		}
	}

	ack := protocol.Encode(protocol.KindAck, d.id, d.link.LocalAddress(), 0)
	if err := d.link.Unicast(msg.SenderAddress, ack); err != nil {
		log.Warnf("Dispatcher: failed to send ACK to %s: %v", msg.SenderAddress, err)
	}
}

// HandleCompletion is called by the link once per attempted transmission.
func (d *Dispatcher) HandleCompletion(c link.Completion) {
	if c.Status == link.StatusSuccess {
		return
	}
	log.Debugf("Dispatcher: transmission to %s failed: %v", c.Destination, c.Err)
	d.events.SendFailed(c.Destination)
}
