/*
File Name:  hash.go
Author:     Eastsea Contributors

Hashing primitives shared by the framed transport (checksum), the DHT
(node ID derivation) and the merkle root helper in this package.
*/

package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the digest size of the hash function used throughout, in bytes.
const Size = sha256.Size

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [Size]byte {
	return sha256.Sum256(data)
}

// SHA256Hex returns the 64-character lowercase hex encoding of SHA256(data).
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
