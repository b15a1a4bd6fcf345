/*
File Name:  overlay.go
Author:     Eastsea Contributors

Overlay is the thin lookup-facing wrapper around RoutingTable, grounded on
the teacher's Kademlia.go (a one-line adapter exposing the hash table to
the rest of the node) and on DHT Lite.go / Search Client.go for the
"seed the table, then look up your own ID" bootstrap shape. Unlike the
teacher's iterative network lookup, FindNode here is local-only: it
returns the routing table's own closest-k view, which is the corrected
behavior this module's specification calls for (the teacher's original
find_node stub only consulted already-connected peers, never the table).
*/

package dht

import (
	"context"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// Overlay is the DHT-facing view over a local routing table.
type Overlay struct {
	table *RoutingTable
}

// NewOverlay creates an overlay bound to the given local node ID.
func NewOverlay(local nodeid.ID) *Overlay {
	return &Overlay{table: NewRoutingTable(local)}
}

// Table exposes the underlying routing table, e.g. for a hub's periodic
// maintenance loop.
func (o *Overlay) Table() *RoutingTable {
	return o.table
}

// FindNode returns the overlay's own closest-k view of target. It never
// issues a network round-trip; that is the caller's job, using the
// returned contacts to drive find_node requests against remote peers.
func (o *Overlay) FindNode(target nodeid.ID) []PeerRecord {
	return o.table.Closest(target, BucketSize)
}

// Bootstrap seeds the routing table from a list of known peers, then
// performs a self-lookup, mirroring the teacher's "add seeds, then
// self-lookup" shape. Because FindNode is local-only and its result is
// discarded here, the table holds only the seeds afterwards.
func (o *Overlay) Bootstrap(ctx context.Context, seeds []PeerRecord) {
	for _, seed := range seeds {
		select {
		case <-ctx.Done():
			return
		default:
		}
		o.table.Add(seed)
	}

	o.FindNode(o.table.Local())
}
