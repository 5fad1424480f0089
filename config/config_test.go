package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewEmptyConfig("unused.json")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Protocol.DiscoveryInterval.Duration != 10*time.Second || cfg.Protocol.DataInterval.Duration != 5*time.Second {
		t.Fatalf("unexpected default intervals: %s / %s", cfg.Protocol.DiscoveryInterval, cfg.Protocol.DataInterval)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"node.json", "node.toml"} {
		path := filepath.Join(t.TempDir(), name)

		cfg := NewEmptyConfig(path)
		cfg.Node.ID = 7
		cfg.Protocol.MaxPeers = 3
		cfg.Protocol.DataInterval = Duration{2 * time.Second}
		cfg.Link.Driver = DriverZMQ
		cfg.Link.HardwareAddr = "02:00:00:00:00:07"
		cfg.Link.Endpoints = []string{"tcp://10.0.0.2:9998", "tcp://10.0.0.3:9998"}
		if err := cfg.Save(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		loaded, err := NewConfigFromFile(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if loaded.Node.ID != 7 || loaded.Protocol.MaxPeers != 3 || loaded.Link.Driver != DriverZMQ {
			t.Fatalf("%s: unexpected config %+v", name, loaded)
		}
		if loaded.Protocol.DataInterval.Duration != 2*time.Second {
			t.Fatalf("%s: unexpected data interval %s", name, loaded.Protocol.DataInterval)
		}
		if len(loaded.Link.Endpoints) != 2 {
			t.Fatalf("%s: unexpected endpoints %v", name, loaded.Link.Endpoints)
		}
		addr, ok, err := loaded.HardwareAddr()
		if err != nil || !ok || addr.String() != "02:00:00:00:00:07" {
			t.Fatalf("%s: unexpected hardware address %s (%v, %v)", name, addr, ok, err)
		}
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	if err := os.WriteFile(path, []byte(`{"node": {"id": 4}, "protocol": {"discovery_interval": "30s"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Node.ID != 4 || cfg.Protocol.DiscoveryInterval.Duration != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Protocol.DataInterval.Duration != 5*time.Second || cfg.Link.Driver != DriverUDP {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"id zero", func(c *Config) { c.Node.ID = 0 }},
		{"id too large", func(c *Config) { c.Node.ID = 11 }},
		{"no capacity", func(c *Config) { c.Protocol.MaxPeers = 0 }},
		{"data not shorter", func(c *Config) { c.Protocol.DataInterval = c.Protocol.DiscoveryInterval }},
		{"negative interval", func(c *Config) { c.Protocol.DataInterval = Duration{-time.Second} }},
		{"unknown driver", func(c *Config) { c.Link.Driver = "carrier-pigeon" }},
		{"udp without group", func(c *Config) { c.Link.Group = "" }},
		{"bad hardware address", func(c *Config) { c.Link.HardwareAddr = "zz:zz" }},
	}

	for _, c := range cases {
		cfg := NewEmptyConfig("unused.json")
		c.modify(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", c.name, err)
		}
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("unexpected duration %s", d)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatal("expected parse error")
	}
}
