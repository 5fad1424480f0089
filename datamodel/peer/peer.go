package peer

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// AddrLen is the length of a link-layer hardware address.
const AddrLen = 6

var ErrInvalidHardwareAddr = errors.New("invalid hardware address")

// HardwareAddr is a fixed-length link-layer address. It is comparable and can be used as a map key.
type HardwareAddr [AddrLen]byte

// Broadcast is the all-peers address of the shared link.
var Broadcast = HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func ParseHardwareAddr(s string) (HardwareAddr, error) {
	var a HardwareAddr
	mac, err := net.ParseMAC(s)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidHardwareAddr, err)
	}
	if len(mac) != AddrLen {
		return a, fmt.Errorf("%w: %q has %d bytes", ErrInvalidHardwareAddr, s, len(mac))
	}
	copy(a[:], mac)
	return a, nil
}

func (a HardwareAddr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

func (a HardwareAddr) IsBroadcast() bool {
	return a == Broadcast
}

// MarshalText and UnmarshalText let the address appear as a string in config files.
func (a HardwareAddr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *HardwareAddr) UnmarshalText(text []byte) error {
	parsed, err := ParseHardwareAddr(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Record is an entry of the peer registry.
type Record struct {
	Address   HardwareAddr // Unique key
	LogicalID uint8        // Informational, not required to be unique
}

// JournalEntry is the persisted form of an admission.
type JournalEntry struct {
	Address    HardwareAddr `cbor:"1,keyasint"`           // Admitted peer
	LogicalID  uint8        `cbor:"2,keyasint,omitempty"` // Logical id announced by the peer
	AdmittedAt time.Time    `cbor:"3,keyasint,omitempty"` // Local time of admission
}

// Journal records peer admissions. It is append-only: the registry never removes peers, so neither does the journal.
type Journal interface {
	// Append stores an admission. Appending an address that is already present overwrites the entry.
	Append(*JournalEntry) error

	// Get returns the entry for a given address, or an error if the address was never admitted.
	Get(HardwareAddr) (*JournalEntry, error)

	// Enumerate returns all entries ordered by admission.
	Enumerate() ([]*JournalEntry, error)
}
