/*
File Name:  nodeid.go
Author:     Eastsea Contributors

NodeID is the 256-bit identifier used throughout the DHT routing table and
the peer records exchanged by the network layer. For DHT peers it is
deterministic, derived from the peer's address; the local node hub instead
picks a random one at start.
*/

package nodeid

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/kjaylee/eastsea-node-sub000/hashutil"
)

// Size is the length of a NodeID in bytes (256 bits).
const Size = 32

// Bits is the length of a NodeID in bits, i.e. the number of buckets a
// routing table indexed by this ID needs.
const Bits = Size * 8

// ID is a 256-bit node identifier.
type ID [Size]byte

// Zero is the all-zero ID, used as a routing table's own address only for
// tests; a real local node never uses it.
var Zero ID

// FromAddress derives the deterministic NodeID for a DHT peer from its
// "address:port" string, per spec: NodeID = SHA-256("<address>:<port>").
func FromAddress(address string) ID {
	return ID(hashutil.SHA256([]byte(address)))
}

// Random generates a random 256-bit ID, used to assign the local node hub's
// own identity at startup.
func Random() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return ID{}, err
	}
	return id, nil
}

// Equal reports whether two IDs are byte-wise identical.
func (id ID) Equal(other ID) bool {
	return id == other
}

// String returns the lowercase hex encoding of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the ID as a byte slice.
func (id ID) Bytes() []byte {
	return id[:]
}

// FromBytes parses a NodeID from a 32-byte slice.
func FromBytes(b []byte) (id ID, ok bool) {
	if len(b) != Size {
		return ID{}, false
	}
	copy(id[:], b)
	return id, true
}

// FromHex parses a NodeID from its 64-character hex encoding.
func FromHex(s string) (id ID, err error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	id, ok := FromBytes(b)
	if !ok {
		return ID{}, errInvalidLength
	}
	return id, nil
}
