/*
File Name:  distance.go
Author:     Eastsea Contributors

XOR distance and bucket index calculation. Ported from the teacher's
dht.getBucketIndexFromDifferingBit (same byte-then-bit scan), generalized
from the teacher's configurable bit width to this module's fixed 256-bit
ID space.
*/

package nodeid

import "errors"

var errInvalidLength = errors.New("nodeid: invalid byte length for ID")

// BucketIndex returns the zero-based position of the highest differing bit
// between local and target, i.e. the routing table bucket index target
// belongs to relative to local. Per spec, bucket i contains peers whose IDs
// share the first (Bits-1-i) bits with local. If local == target, 0 is
// returned (this should only happen during bootstrap/self-lookup).
func BucketIndex(local, target ID) int {
	for byteIndex := 0; byteIndex < Size; byteIndex++ {
		xor := local[byteIndex] ^ target[byteIndex]
		if xor == 0 {
			continue
		}

		for bitIndex := 0; bitIndex < 8; bitIndex++ {
			if hasBit(xor, bitIndex) {
				return Bits - (byteIndex*8 + bitIndex) - 1
			}
		}
	}

	return 0
}

// hasBit reports whether the bit at pos (0 = most significant) is set in b.
func hasBit(b byte, pos int) bool {
	shift := uint(7 - pos)
	return b&(1<<shift) != 0
}
