/*
File Name:  store.go
Author:     Eastsea Contributors

Persistent peer registry the tracker writes announced records into.
Adapted from the teacher's store/Pogreb.go, repointed at tracker peer
records instead of warehouse blobs, and extended with Iterate (absent from
the teacher's store) to walk every stored entry. The server itself keeps
its working set in memory and does not read this store back.
*/

package tracker

import (
	"encoding/binary"
	"io"
	"log"
	"sync"
	"time"

	"github.com/akrylysov/pogreb"
	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// PeerStore persists tracker peer records keyed by node ID.
type PeerStore struct {
	mutex *sync.Mutex
	db    *pogreb.DB
}

// NewPeerStore opens (or creates) a Pogreb-backed peer registry at filename.
func NewPeerStore(filename string) (*PeerStore, error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, err
	}

	return &PeerStore{mutex: &sync.Mutex{}, db: db}, nil
}

// storedRecord is the fixed encoding of a PeerRecord's value half (the key
// is always the node ID).
const storedRecordSize = 4 + 2 + 8

// Put inserts or refreshes a peer record.
func (s *PeerStore) Put(rec PeerRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ip4 := rec.IP.To4()
	if ip4 == nil {
		return ErrNotIPv4
	}

	value := make([]byte, storedRecordSize)
	copy(value[0:4], ip4)
	binary.LittleEndian.PutUint16(value[4:6], rec.Port)
	binary.LittleEndian.PutUint64(value[6:14], uint64(rec.LastSeen.Unix()))

	return s.db.Put(rec.NodeID[:], value)
}

// Get returns the peer record for id, if present.
func (s *PeerStore) Get(id nodeid.ID) (rec PeerRecord, found bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	value, err := s.db.Get(id[:])
	if err != nil || value == nil || len(value) != storedRecordSize {
		return PeerRecord{}, false
	}

	ip := make([]byte, 4)
	copy(ip, value[0:4])

	return PeerRecord{
		IP:       ip,
		Port:     binary.LittleEndian.Uint16(value[4:6]),
		NodeID:   id,
		LastSeen: time.Unix(int64(binary.LittleEndian.Uint64(value[6:14])), 0),
	}, true
}

// Delete removes a peer record.
func (s *PeerStore) Delete(id nodeid.ID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.db.Delete(id[:])
}

// Iterate calls fn for every stored peer record. Not present on the
// teacher's store; it gives a full walk, which the key/value
// Get/Put/Delete surface alone cannot provide. The server's eviction
// sweep and GET_PEERS handler walk the in-memory map, not this store.
func (s *PeerStore) Iterate(fn func(rec PeerRecord)) error {
	s.mutex.Lock()
	it := s.db.Items()
	s.mutex.Unlock()

	for {
		key, value, err := it.Next()
		if err == pogreb.ErrIterationDone {
			return nil
		}
		if err != nil {
			return err
		}
		if len(key) != nodeid.Size || len(value) != storedRecordSize {
			continue
		}

		var id nodeid.ID
		copy(id[:], key)

		ip := make([]byte, 4)
		copy(ip, value[0:4])

		fn(PeerRecord{
			IP:       ip,
			Port:     binary.LittleEndian.Uint16(value[4:6]),
			NodeID:   id,
			LastSeen: time.Unix(int64(binary.LittleEndian.Uint64(value[6:14])), 0),
		})
	}
}

// Close releases the underlying database handle.
func (s *PeerStore) Close() error {
	return s.db.Close()
}
