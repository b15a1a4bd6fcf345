/*
File Name:  routing_table.go
Author:     Eastsea Contributors

256 XOR-distance buckets of size k=20 with Kademlia-style replacement.
Adapted from the teacher's dht.hashTable (Hash Table.go): one mutex guards
the whole table (spec mandates no finer-grained locking), the bucket index
is the highest differing bit between the local ID and the candidate, and
Closest expands outward from the target's own bucket by increasing radius.
Two behaviors are deliberately changed from the teacher to match this
module's spec: (1) re-adding a known peer refreshes LastSeen in place
without moving it to the end of the bucket (the teacher's hashTable treats
buckets as an LRU list; here bucket order is append-only, "insertion order
preserved" per spec), and (2) admission into a full bucket is decided by
the incumbents' staleness: the first one not seen within AliveWindow is
replaced, with no probe, since there is no live peer to ping
synchronously from this package.
*/

package dht

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// BucketSize is k, the maximum number of peer records held per bucket.
const BucketSize = 20

// BucketCount is the number of buckets in the table, one per bit of a NodeID.
const BucketCount = nodeid.Bits

// AddResult describes the outcome of RoutingTable.Add.
type AddResult int

const (
	// Added means the peer was newly inserted into its bucket.
	Added AddResult = iota
	// Updated means the peer already existed; its LastSeen was refreshed.
	Updated
	// Rejected means the bucket was full of live peers; the conservation
	// policy is to do nothing to the lookup result here.
	Rejected
)

// RoutingTable is a Kademlia-style DHT routing table keyed by XOR distance
// to a fixed local ID.
type RoutingTable struct {
	local nodeid.ID

	mu      sync.Mutex
	buckets [BucketCount][]PeerRecord

	// now is overridable for deterministic tests; defaults to time.Now.
	now func() time.Time
}

// NewRoutingTable creates an empty routing table for the given local ID.
func NewRoutingTable(local nodeid.ID) *RoutingTable {
	return &RoutingTable{local: local, now: time.Now}
}

// Local returns the routing table's own node ID.
func (rt *RoutingTable) Local() nodeid.ID {
	return rt.local
}

// Add inserts or refreshes a peer record. Adding the local ID is a no-op
// (returns Rejected): the local node is never present in its own table.
func (rt *RoutingTable) Add(p PeerRecord) AddResult {
	if p.ID.Equal(rt.local) {
		return Rejected
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	index := nodeid.BucketIndex(rt.local, p.ID)
	bucket := rt.buckets[index]

	for i := range bucket {
		if bucket[i].ID.Equal(p.ID) {
			bucket[i].LastSeen = rt.nowFunc()
			bucket[i].Address = p.Address
			bucket[i].Port = p.Port
			return Updated
		}
	}

	if p.LastSeen.IsZero() {
		p.LastSeen = rt.nowFunc()
	}

	if len(bucket) < BucketSize {
		rt.buckets[index] = append(bucket, p)
		return Added
	}

	now := rt.nowFunc()
	for i := range bucket {
		if !bucket[i].IsAlive(now) {
			bucket[i] = p
			return Added
		}
	}

	return Rejected
}

// Remove deletes the peer with the given ID from its bucket, if present.
// Removing an ID that is not present is a no-op. Per spec this is a
// swap-remove: the removed slot is filled with the bucket's last entry,
// which does not preserve relative order of the remaining peers.
func (rt *RoutingTable) Remove(id nodeid.ID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	index := nodeid.BucketIndex(rt.local, id)
	bucket := rt.buckets[index]

	for i := range bucket {
		if bucket[i].ID.Equal(id) {
			last := len(bucket) - 1
			bucket[i] = bucket[last]
			rt.buckets[index] = bucket[:last]
			return
		}
	}
}

// Closest returns up to n peers closest to target by XOR distance. It
// starts in target's own bucket, then expands outward by radius ±1, ±2, …,
// gathers all candidates, and returns the first n after a stable
// ascending-distance sort (ties broken by insertion order).
func (rt *RoutingTable) Closest(target nodeid.ID, n int) []PeerRecord {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if n <= 0 {
		return nil
	}

	center := nodeid.BucketIndex(rt.local, target)

	var candidates []PeerRecord
	for radius := 0; radius < BucketCount; radius++ {
		added := false

		if idx := center - radius; idx >= 0 {
			candidates = append(candidates, rt.buckets[idx]...)
			added = true
		}
		if radius > 0 {
			if idx := center + radius; idx < BucketCount {
				candidates = append(candidates, rt.buckets[idx]...)
				added = true
			}
		}

		if !added && radius > center && center+radius >= BucketCount {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return xorDistance(target, candidates[i].ID).Cmp(xorDistance(target, candidates[j].ID)) < 0
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// Total returns the total number of peer records across all buckets.
func (rt *RoutingTable) Total() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	total := 0
	for _, bucket := range rt.buckets {
		total += len(bucket)
	}
	return total
}

// ActiveBuckets returns the number of buckets holding at least one peer.
func (rt *RoutingTable) ActiveBuckets() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	active := 0
	for _, bucket := range rt.buckets {
		if len(bucket) > 0 {
			active++
		}
	}
	return active
}

func (rt *RoutingTable) nowFunc() time.Time {
	if rt.now != nil {
		return rt.now()
	}
	return time.Now()
}

func xorDistance(a, b nodeid.ID) *big.Int {
	var xor [nodeid.Size]byte
	for i := range a {
		xor[i] = a[i] ^ b[i]
	}
	return new(big.Int).SetBytes(xor[:])
}
