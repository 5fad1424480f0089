package commands

import (
	"context"
	"nowlink/config"
	"nowlink/net/link"

	log "github.com/sirupsen/logrus"
)

// RunInit writes a default config with a freshly generated hardware address.
func RunInit(ctx context.Context, cfg *config.Config) {
	if cfg.Link.HardwareAddr == "" {
		addr, err := link.GenerateHardwareAddr()
		if err != nil {
			log.Fatalf("Failed to generate hardware address: %v", err)
		}
		cfg.Link.HardwareAddr = addr.String()
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Refusing to write invalid config: %v", err)
	}

	if err := cfg.Save(); err != nil {
		log.Fatalf("Failed to save config: %v", err)
	}

	log.Infof("Initialized node ID %d with hardware address %s", cfg.Node.ID, cfg.Link.HardwareAddr)
}
