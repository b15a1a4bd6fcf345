/*
File Name:  blacklist.go
Author:     Eastsea Contributors

A persistent blacklist of node IDs. The local hub consults it when a
peer's handshake frame arrives and closes that session if the ID is
banned; outbound dials are not checked. Adapted from the teacher's
Blacklist.go: same Pogreb-backed store and AddBlackList/CheckNodeBlackList/
RemoveNodeBlackList/ListAllNodesInBlackList shape, but keyed by this
module's 32-byte nodeid.ID rather than a btcec compressed public key,
and returning entries as typed values instead of printing them.
*/

package eastsea

import (
	"sync"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
	"github.com/kjaylee/eastsea-node-sub000/store"
)

// Blacklist is a persistent set of banned node IDs with the reason each
// one was banned.
type Blacklist struct {
	db *store.PogrebStore
	mu sync.RWMutex
}

// NewBlacklist opens (or creates) a Pogreb-backed blacklist at
// databaseDirectory. An empty directory disables persistence: the
// returned Blacklist is nil and every call on it is a safe no-op.
func NewBlacklist(databaseDirectory string) (*Blacklist, error) {
	if databaseDirectory == "" {
		return nil, nil
	}
	db, err := store.NewPogrebStore(databaseDirectory)
	if err != nil {
		return nil, err
	}
	return &Blacklist{db: db}, nil
}

// Add bans id, recording reason. Any existing session to id is the
// caller's responsibility to close; this only updates the persistent
// record (mirrors the teacher's AddBlackList, which likewise only
// touches the store and the in-memory peer list, not the live
// connection).
func (b *Blacklist) Add(id nodeid.ID, reason string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Set(id.Bytes(), []byte(reason))
}

// IsBanned reports whether id is currently blacklisted.
func (b *Blacklist) IsBanned(id nodeid.ID) bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, found := b.db.Get(id.Bytes())
	return found
}

// Remove un-bans id.
func (b *Blacklist) Remove(id nodeid.ID) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.db.Delete(id.Bytes())
	return nil
}

// BlacklistEntry is one record yielded by Blacklist.List.
type BlacklistEntry struct {
	NodeID nodeid.ID
	Reason string
}

// List returns every currently banned node ID and its reason.
func (b *Blacklist) List() ([]BlacklistEntry, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var entries []BlacklistEntry
	err := b.db.Iterate(func(key, value []byte) {
		id, ok := nodeid.FromBytes(key)
		if !ok {
			return
		}
		entries = append(entries, BlacklistEntry{NodeID: id, Reason: string(value)})
	})
	return entries, err
}

// Close releases the underlying database handle.
func (b *Blacklist) Close() error {
	if b == nil {
		return nil
	}
	return b.db.Close()
}
