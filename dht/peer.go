/*
File Name:  peer.go
Author:     Eastsea Contributors
*/

package dht

import (
	"time"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// AliveWindow is the liveness window for a DHT peer record: a peer not seen
// within this duration is considered stale and eligible for bucket
// replacement.
const AliveWindow = 300 * time.Second

// PeerRecord is one entry in the routing table.
type PeerRecord struct {
	ID       nodeid.ID
	Address  string
	Port     uint16
	LastSeen time.Time

	// Distance is a scratch field recomputed per lookup; it is not part of
	// the record's identity and is ignored by Equal.
	Distance uint32
}

// IsAlive reports whether the peer was seen within AliveWindow of now.
func (p PeerRecord) IsAlive(now time.Time) bool {
	return now.Sub(p.LastSeen) < AliveWindow
}
