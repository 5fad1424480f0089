package leveldb

import (
	"nowlink/datamodel/peer"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

var ErrNotFound = errors.ErrNotFound

var _ peer.Journal = (*PeerJournal)(nil)

type PeerJournal struct {
	*store
	seq uint64
}

func NewPeerJournal(path string) (*PeerJournal, error) {
	st, err := openStore(path)
	if err != nil {
		return nil, err
	}

	// Continue numbering after the last journaled admission
	seq, err := st.lastSeq()
	if err != nil {
		st.Close()
		return nil, err
	}

	return &PeerJournal{store: st, seq: seq}, nil
}

func (l *PeerJournal) Append(entry *peer.JournalEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := cbor.Marshal(entry)
	if err != nil {
		return err
	}

	// Re-admission after a restart keeps the first position
	seqKey, err := l.db.Get(keyFromAddr(entry.Address), nil)
	if err != nil && err != errors.ErrNotFound {
		return err
	}

	batch := new(leveldb.Batch)
	if err == errors.ErrNotFound {
		l.seq++
		seqKey = keyFromSeq(l.seq)
		batch.Put(keyFromAddr(entry.Address), seqKey)
	}
	batch.Put(seqKey, raw)

	return l.db.Write(batch, nil)
}

func (l *PeerJournal) Get(addr peer.HardwareAddr) (*peer.JournalEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seqKey, err := l.db.Get(keyFromAddr(addr), nil)
	if err != nil {
		return nil, err
	}

	raw, err := l.db.Get(seqKey, nil)
	if err != nil {
		return nil, err
	}

	// Unmarshall CBOR
	entry := &peer.JournalEntry{}
	if err := cbor.Unmarshal(raw, entry); err != nil {
		return nil, err
	}

	// Compare the address just in case
	if entry.Address != addr {
		log.Errorf("Get: address mismatch: %s != %s", addr, entry.Address)
		return nil, ErrCorrupted
	}

	return entry, nil
}

func (l *PeerJournal) Enumerate() ([]*peer.JournalEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []*peer.JournalEntry

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixSeq)), nil)
	defer iter.Release()

	for iter.Next() {
		entry := &peer.JournalEntry{}
		if err := cbor.Unmarshal(iter.Value(), entry); err != nil {
			return nil, err
		}
		results = append(results, entry)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}
