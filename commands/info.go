package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"nowlink/config"
	"nowlink/datamodel/peer"
	"nowlink/datastore/leveldb"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
)

// RunInfo prints every admission recorded in the journal, or only the one for addr when it is set.
func RunInfo(ctx context.Context, cfg *config.Config, addr string) {
	if cfg.DataStore.JournalPath == "" {
		log.Fatal("No journal configured")
	}

	journal, err := leveldb.NewPeerJournal(cfg.DataStore.JournalPath)
	if err != nil {
		log.Fatalf("Failed to open peer journal: %v", err)
	}
	defer journal.Close()

	var entries []*peer.JournalEntry
	if addr != "" {
		entry, err := lookupEntry(journal, addr)
		if err != nil {
			log.Errorf("Failed to look up %s: %v", addr, err)
			return
		}
		entries = append(entries, entry)
	} else {
		entries, err = journal.Enumerate()
		if err != nil {
			log.Errorf("Failed to enumerate peer journal: %v", err)
			return
		}
		log.Infof("Peer journal: %d peers known", len(entries))
	}

	printEntries(os.Stdout, entries)
}

func lookupEntry(journal peer.Journal, addr string) (*peer.JournalEntry, error) {
	a, err := peer.ParseHardwareAddr(addr)
	if err != nil {
		return nil, err
	}
	entry, err := journal.Get(a)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%s was never admitted", a)
	}
	return entry, err
}

func printEntries(out io.Writer, entries []*peer.JournalEntry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tID\tADMITTED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\n", e.Address, e.LogicalID, e.AdmittedAt.Format(time.RFC3339))
	}
	w.Flush()
}
