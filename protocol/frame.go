/*
File Name:  frame.go
Author:     Eastsea Contributors

Basic frame structure of ALL messages exchanged over a peer session:

Offset  Size   Info
0       4      Magic = 0x534F4C41 ("SOLA"), little-endian
4       2      Version = 1
6       1      Message type
7       4      Payload size (little-endian), must be <= MaxPayloadSize
11      4      Checksum (little-endian) = first 4 bytes of SHA-256(payload)
15      ?      Payload

Adapted from the teacher's Packet Encoding.go, which frames UDP packets with
a nonce + ECDSA signature; this module instead frames a reliable TCP byte
stream with a magic+checksum header, since signature schemes are out of
scope here. The "validate before trusting, fixed header then payload" shape
is kept.
*/

package protocol

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/kjaylee/eastsea-node-sub000/hashutil"
)

// Magic is the 4-byte constant that opens every frame.
const Magic uint32 = 0x534F4C41

// Version is the current wire protocol version.
const Version uint16 = 1

// HeaderSize is the fixed size, in bytes, of a frame header.
const HeaderSize = 4 + 2 + 1 + 4 + 4

// MaxPayloadSize is the hard protocol limit on a single frame's payload.
const MaxPayloadSize = 4096

// Reserved message types used by the node hub's default handler registry.
const (
	MsgPing        byte = 0
	MsgPong        byte = 1
	MsgBlock       byte = 2
	MsgTransaction byte = 3
	MsgFeatures    byte = 4
	MsgHandshake   byte = 5
)

// Errors returned by DecodeFrame. A session dropping the connection on any
// of these is a policy decision made by the caller, not by this codec.
var (
	ErrBadMagic         = errors.New("protocol: invalid frame magic")
	ErrBadVersion       = errors.New("protocol: unsupported frame version")
	ErrPayloadTooLarge  = errors.New("protocol: payload exceeds maximum frame size")
	ErrChecksumMismatch = errors.New("protocol: frame checksum mismatch")
)

// EncodeFrame builds the wire representation of a single message.
func EncodeFrame(msgType byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	buf[6] = msgType
	binary.LittleEndian.PutUint32(buf[7:11], uint32(len(payload)))

	sum := hashutil.SHA256(payload)
	copy(buf[11:15], sum[:4])

	copy(buf[HeaderSize:], payload)

	return buf, nil
}

// DecodeFrame reads exactly one frame from r: the fixed header, then the
// payload it describes. It validates magic, version, the payload size
// cap, and the checksum before returning.
func DecodeFrame(r io.Reader) (msgType byte, payload []byte, err error) {
	header := make([]byte, HeaderSize)
	if _, err = io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	if binary.LittleEndian.Uint32(header[0:4]) != Magic {
		return 0, nil, ErrBadMagic
	}
	if binary.LittleEndian.Uint16(header[4:6]) != Version {
		return 0, nil, ErrBadVersion
	}

	msgType = header[6]
	payloadSize := binary.LittleEndian.Uint32(header[7:11])
	if payloadSize > MaxPayloadSize {
		return 0, nil, ErrPayloadTooLarge
	}

	payload = make([]byte, payloadSize)
	if payloadSize > 0 {
		if _, err = io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}

	sum := hashutil.SHA256(payload)
	if !bytesEqual(header[11:15], sum[:4]) {
		return 0, nil, ErrChecksumMismatch
	}

	return msgType, payload, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
