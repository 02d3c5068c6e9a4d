// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package archive is a badger-backed bounded ring of recent
// observability events per session, for post-mortem inspection after a
// session has ended and its bus subscribers are gone (spec.md §4.8:
// "implementations may retain a bounded history of recent events per
// session"). Grounded on the teacher's
// internal/v3/store/badger_store.go: same key-prefix-per-entity-kind
// layout, json.Marshal/Unmarshal envelopes, and prefix iteration.
package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/observability"
)

// defaultCapacity is how many of a session's most recent events the
// archive retains before trimming the oldest.
const defaultCapacity = 1000

// Archive stores events keyed "evt:<sessionID>:<seq>" (seq a
// zero-padded big-endian counter, so prefix iteration yields
// chronological order) plus "seq:<sessionID>" holding the next
// counter value.
type Archive struct {
	db       *badger.DB
	capacity int
}

// Open opens (creating if absent) a badger database at path.
func Open(path string) (*Archive, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Archive{db: db, capacity: defaultCapacity}, nil
}

// Close releases the underlying database.
func (a *Archive) Close() error { return a.db.Close() }

func eventKey(sessionID string, seq uint64) []byte {
	key := make([]byte, 0, len("evt:")+len(sessionID)+1+8)
	key = append(key, "evt:"...)
	key = append(key, sessionID...)
	key = append(key, ':')
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return append(key, seqBuf[:]...)
}

func seqKey(sessionID string) []byte {
	return []byte("seq:" + sessionID)
}

// Append records ev, trimming the session's oldest entries once the
// archive's per-session capacity is exceeded.
func (a *Archive) Append(ev observability.Event) error {
	buf, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return a.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, ev.SessionID)
		if err != nil {
			return err
		}
		if err := txn.Set(eventKey(ev.SessionID, seq), buf); err != nil {
			return err
		}
		var nextBuf [8]byte
		binary.BigEndian.PutUint64(nextBuf[:], seq+1)
		if err := txn.Set(seqKey(ev.SessionID), nextBuf[:]); err != nil {
			return err
		}
		return trimOldest(txn, ev.SessionID, seq, a.capacity)
	})
}

func nextSeq(txn *badger.Txn, sessionID string) (uint64, error) {
	item, err := txn.Get(seqKey(sessionID))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		seq = binary.BigEndian.Uint64(val)
		return nil
	})
	return seq, err
}

// trimOldest deletes events older than the most recent `capacity`
// entries for sessionID, given the sequence number just written.
func trimOldest(txn *badger.Txn, sessionID string, latestSeq uint64, capacity int) error {
	if latestSeq+1 <= uint64(capacity) {
		return nil
	}
	cutoff := latestSeq + 1 - uint64(capacity)
	prefix := []byte("evt:" + sessionID + ":")
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		seq := binary.BigEndian.Uint64(key[len(prefix):])
		if seq >= cutoff {
			break
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns up to limit of sessionID's most recently archived
// events, oldest first.
func (a *Archive) Recent(sessionID string, limit int) ([]observability.Event, error) {
	var all []observability.Event
	prefix := []byte("evt:" + sessionID + ":")
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var ev observability.Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return err
			}
			all = append(all, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Subscriber drives Append from a live Bus subscription until the
// subscription channel closes; callers should run it in its own
// goroutine per session.
type Subscriber struct {
	archive *Archive
}

// NewSubscriber binds archive for use with Run.
func NewSubscriber(archive *Archive) *Subscriber {
	return &Subscriber{archive: archive}
}

// Run drains ch, archiving every event, until ch closes.
func (s *Subscriber) Run(ch <-chan observability.Event) {
	for ev := range ch {
		if err := s.archive.Append(ev); err != nil {
			log.WithComponent("observability.archive").Warn().
				Str("session_id", ev.SessionID).Err(err).Msg("failed to archive event")
		}
	}
}
