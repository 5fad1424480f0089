// Package leveldb persists the peer admission journal.
//
// Two key spaces share one database:
//
//	SEQ<16 hex digits>  CBOR peer.JournalEntry, in admission order
//	ADR<address>        the SEQ key holding that address's entry
//
// Iterating the SEQ prefix yields admissions in order; the last SEQ key gives the sequence number to continue from.
package leveldb

import (
	"fmt"
	"strconv"
	"sync"

	"nowlink/datamodel/peer"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixAddr = "ADR"
	keyPrefixSeq  = "SEQ"
	seqDigits     = 16
)

var ErrCorrupted = fmt.Errorf("corrupted")

type store struct {
	mu sync.Mutex
	db *leveldb.DB
}

func keyFromAddr(addr peer.HardwareAddr) []byte {
	return append([]byte(keyPrefixAddr), addr.String()...)
}

func keyFromSeq(seq uint64) []byte {
	return append([]byte(keyPrefixSeq), fmt.Sprintf("%0*x", seqDigits, seq)...)
}

func seqFromKey(key []byte) (uint64, error) {
	if len(key) != len(keyPrefixSeq)+seqDigits || string(key[:len(keyPrefixSeq)]) != keyPrefixSeq {
		return 0, fmt.Errorf("%w: bad sequence key %q", ErrCorrupted, key)
	}
	return strconv.ParseUint(string(key[len(keyPrefixSeq):]), 16, 64)
}

// openStore opens or creates the database, salvaging what it can from a corrupted one.
func openStore(path string) (*store, error) {
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}

	db, err := leveldb.OpenFile(path, opts)
	if errors.IsCorrupted(err) {
		log.Warnf("Journal at %s is corrupted, recovering: %v", path, err)
		db, err = leveldb.RecoverFile(path, opts)
	}
	if err != nil {
		return nil, err
	}

	log.Infof("Opened journal at %s", path)

	return &store{db: db}, nil
}

// lastSeq returns the highest admission sequence number stored, or 0 for an empty journal.
func (s *store) lastSeq() (uint64, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefixSeq)), nil)
	defer iter.Release()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return seqFromKey(iter.Key())
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
