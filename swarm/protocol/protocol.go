// Package protocol defines the fixed-size frame exchanged between nodes on the shared link.
//
// Every message kind is encoded to exactly EncodedSize bytes, so the receiver validates a frame by its length alone.
// The layout matches the little-endian firmware struct used by the radio nodes:
//
//	<kind:4><sender_id:1><sender_address:6><pad:1><payload:4>
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"nowlink/datamodel/peer"
)

const (
	offKind    = 0
	offID      = 4
	offAddr    = 5
	offPayload = 12

	// EncodedSize is the length of every encoded message.
	EncodedSize = 16
)

var ErrSizeMismatch = errors.New("frame size mismatch")

type Kind uint32

const (
	KindDiscovery Kind = iota
	KindData
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindDiscovery:
		return "Discovery"
	case KindData:
		return "Data"
	case KindAck:
		return "Ack"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

type Message struct {
	Kind          Kind
	SenderID      uint8
	SenderAddress peer.HardwareAddr
	Payload       float32 // Sample value, only meaningful for KindData
}

// Encode builds the wire representation of a message.
func Encode(kind Kind, senderID uint8, senderAddress peer.HardwareAddr, payload float32) []byte {
	b := make([]byte, EncodedSize)
	binary.LittleEndian.PutUint32(b[offKind:], uint32(kind))
	b[offID] = senderID
	copy(b[offAddr:offAddr+peer.AddrLen], senderAddress[:])
	binary.LittleEndian.PutUint32(b[offPayload:], math.Float32bits(payload))
	return b
}

func (m *Message) Marshal() []byte {
	return Encode(m.Kind, m.SenderID, m.SenderAddress, m.Payload)
}

// Decode parses a frame. The length is the only thing validated: unknown kinds are returned as-is.
func Decode(b []byte) (*Message, error) {
	if len(b) != EncodedSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(b), EncodedSize)
	}

	m := &Message{
		Kind:     Kind(binary.LittleEndian.Uint32(b[offKind:])),
		SenderID: b[offID],
		Payload:  math.Float32frombits(binary.LittleEndian.Uint32(b[offPayload:])),
	}
	copy(m.SenderAddress[:], b[offAddr:offAddr+peer.AddrLen])
	return m, nil
}
