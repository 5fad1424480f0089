package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nowlink/datamodel/peer"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

const (
	DriverUDP = "udp"
	DriverZMQ = "zmq"

	MinNodeID = 1
	MaxNodeID = 10
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration written as a Go duration string ("10s") in config files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config represents the configuration of a nowlink node
type Config struct {
	// Default config file location
	configFile string

	// Local identity. The hardware address comes from the link section.
	Node struct {
		ID      uint8   `json:"id" toml:"id"`
		Payload float32 `json:"payload" toml:"payload"` // Sample value sent in every data message
	} `json:"node" toml:"node"`

	Protocol struct {
		MaxPeers          int      `json:"max_peers" toml:"max_peers"`
		DiscoveryInterval Duration `json:"discovery_interval" toml:"discovery_interval"`
		DataInterval      Duration `json:"data_interval" toml:"data_interval"`
	} `json:"protocol" toml:"protocol"`

	// Link describes how the shared radio link is emulated
	Link struct {
		Driver       string   `json:"driver" toml:"driver"`
		Group        string   `json:"group" toml:"group"`                 // udp: multicast group
		Interface    string   `json:"interface" toml:"interface"`         // udp: interface to join the group on
		HardwareAddr string   `json:"hardware_addr" toml:"hardware_addr"` // Overrides the interface address
		Listen       string   `json:"listen" toml:"listen"`               // zmq: publisher endpoint
		Endpoints    []string `json:"endpoints" toml:"endpoints"`         // zmq: publishers of the other nodes
		QueueSize    int      `json:"queue_size" toml:"queue_size"`
		Channel      int      `json:"channel" toml:"channel"` // Informational, all nodes share one channel
	} `json:"link" toml:"link"`

	DataStore struct {
		JournalPath string `json:"journal_path" toml:"journal_path"` // Empty disables the admission journal
	} `json:"datastore" toml:"datastore"`

	Metrics struct {
		ListenAddress string `json:"listen_address" toml:"listen_address"` // Empty disables the metrics endpoint
	} `json:"metrics" toml:"metrics"`

	Log struct {
		File       string `json:"file" toml:"file"` // Empty logs to stderr
		MaxSizeMB  int    `json:"max_size_mb" toml:"max_size_mb"`
		MaxBackups int    `json:"max_backups" toml:"max_backups"`
		MaxAgeDays int    `json:"max_age_days" toml:"max_age_days"`
	} `json:"log" toml:"log"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Node.ID = 1
	cfg.Node.Payload = 25.5

	cfg.Protocol.MaxPeers = 10
	cfg.Protocol.DiscoveryInterval = Duration{10 * time.Second}
	cfg.Protocol.DataInterval = Duration{5 * time.Second}

	cfg.Link.Driver = DriverUDP
	cfg.Link.Group = "239.0.0.1:9999"
	cfg.Link.Listen = "tcp://*:9998"
	cfg.Link.QueueSize = 64
	cfg.Link.Channel = 1

	cfg.DataStore.JournalPath = "/tmp/nowlink/journal"

	cfg.Log.MaxSizeMB = 10
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) isTOML() bool {
	return strings.EqualFold(filepath.Ext(c.configFile), ".toml")
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	var data []byte
	if c.isTOML() {
		buf := new(bytes.Buffer)
		if err := toml.NewEncoder(buf).Encode(c); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		// We'll marshall our structure to JSON and write it into a file
		var err error
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
	}

	if dir := filepath.Dir(c.configFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if c.isTOML() {
		if _, err := toml.Decode(string(data), c); err != nil {
			return err
		}
		return nil
	}

	if err := json.Unmarshal(data, c); err != nil {
		return err
	}

	return nil
}

// HardwareAddr returns the configured hardware address and whether one is set.
func (c *Config) HardwareAddr() (peer.HardwareAddr, bool, error) {
	if c.Link.HardwareAddr == "" {
		return peer.HardwareAddr{}, false, nil
	}
	a, err := peer.ParseHardwareAddr(c.Link.HardwareAddr)
	if err != nil {
		return a, false, err
	}
	return a, true, nil
}

func (c *Config) Validate() error {
	if c.Node.ID < MinNodeID || c.Node.ID > MaxNodeID {
		return fmt.Errorf("%w: node id %d outside %d..%d", ErrInvalidConfig, c.Node.ID, MinNodeID, MaxNodeID)
	}
	if c.Protocol.MaxPeers < 1 {
		return fmt.Errorf("%w: max_peers must be at least 1", ErrInvalidConfig)
	}
	if c.Protocol.DiscoveryInterval.Duration <= 0 || c.Protocol.DataInterval.Duration <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.Protocol.DataInterval.Duration >= c.Protocol.DiscoveryInterval.Duration {
		return fmt.Errorf("%w: data_interval (%s) must be shorter than discovery_interval (%s)",
			ErrInvalidConfig, c.Protocol.DataInterval, c.Protocol.DiscoveryInterval)
	}

	switch c.Link.Driver {
	case DriverUDP:
		if c.Link.Group == "" {
			return fmt.Errorf("%w: udp link needs a multicast group", ErrInvalidConfig)
		}
	case DriverZMQ:
		if c.Link.Listen == "" {
			return fmt.Errorf("%w: zmq link needs a listen endpoint", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown link driver %q", ErrInvalidConfig, c.Link.Driver)
	}

	if _, _, err := c.HardwareAddr(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}
