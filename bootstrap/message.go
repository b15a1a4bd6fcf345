/*
File Name:  message.go
Author:     Eastsea Contributors

Wire codec for the bootstrap family of messages, reserved msg_type 20-24
on top of the shared protocol.Frame. Grounded on the teacher's
PeerInfo/parseAddress shapes in Bootstrap.go and Peernet.go, adapted from
the teacher's UDP/public-key addressing into a simple host:port record
since peer identity here is the plain NodeID, not an ECDSA public key.

Offset  Size   Info
0       1      msg_type (20-24)
1       16     request_id (UUID)
17      2      address length (little-endian)
19      ?      address (UTF-8)
19+n    2      port (little-endian)
21+n    4      payload length (little-endian)
25+n    ?      payload
*/

package bootstrap

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// Reserved bootstrap message types.
const (
	MsgBootstrapRequest byte = 20
	MsgPeerListRequest  byte = 21
	MsgPeerListResponse byte = 22
	MsgNodeAnnouncement byte = 23
	MsgHeartbeat        byte = 24
)

// ErrMessageTooShort is returned when a buffer is shorter than its own
// declared field lengths claim.
var ErrMessageTooShort = errors.New("bootstrap: message shorter than declared length")

// Message is a decoded bootstrap-family message.
type Message struct {
	Type      byte
	RequestID uuid.UUID
	Address   string
	Port      uint16
	Payload   []byte
}

// Encode serializes m into its wire form.
func (m Message) Encode() []byte {
	addr := []byte(m.Address)
	size := 1 + 16 + 2 + len(addr) + 2 + 4 + len(m.Payload)
	buf := make([]byte, size)

	buf[0] = m.Type
	copy(buf[1:17], m.RequestID[:])

	offset := 17
	binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(len(addr)))
	offset += 2
	copy(buf[offset:offset+len(addr)], addr)
	offset += len(addr)

	binary.LittleEndian.PutUint16(buf[offset:offset+2], m.Port)
	offset += 2

	binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(m.Payload)))
	offset += 4

	copy(buf[offset:], m.Payload)

	return buf
}

// DecodeMessage parses a bootstrap-family message from its wire form.
func DecodeMessage(raw []byte) (Message, error) {
	if len(raw) < 17+2 {
		return Message{}, ErrMessageTooShort
	}

	var m Message
	m.Type = raw[0]

	requestID, err := uuid.FromBytes(raw[1:17])
	if err != nil {
		return Message{}, err
	}
	m.RequestID = requestID

	offset := 17
	addrLen := int(binary.LittleEndian.Uint16(raw[offset : offset+2]))
	offset += 2
	if offset+addrLen+2+4 > len(raw) {
		return Message{}, ErrMessageTooShort
	}

	m.Address = string(raw[offset : offset+addrLen])
	offset += addrLen

	m.Port = binary.LittleEndian.Uint16(raw[offset : offset+2])
	offset += 2

	payloadLen := int(binary.LittleEndian.Uint32(raw[offset : offset+4]))
	offset += 4
	if offset+payloadLen > len(raw) {
		return Message{}, ErrMessageTooShort
	}

	m.Payload = append([]byte(nil), raw[offset:offset+payloadLen]...)

	return m, nil
}

// EncodePeerList serializes a peer address list for a peer_list_response
// payload: count (4 bytes LE) followed by, per entry, 2-byte LE address
// length + address, 2-byte LE port.
func EncodePeerList(peers []string) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(peers)))

	for _, addr := range peers {
		host, port := splitHostPortOrZero(addr)
		entry := make([]byte, 2+len(host)+2)
		binary.LittleEndian.PutUint16(entry[0:2], uint16(len(host)))
		copy(entry[2:2+len(host)], host)
		binary.LittleEndian.PutUint16(entry[len(entry)-2:], port)
		buf = append(buf, entry...)
	}

	return buf
}

// DecodePeerList parses the payload produced by EncodePeerList into
// "host:port" strings.
func DecodePeerList(payload []byte) ([]string, error) {
	if len(payload) < 4 {
		return nil, ErrMessageTooShort
	}

	count := binary.LittleEndian.Uint32(payload[0:4])
	offset := 4

	peers := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset+2 > len(payload) {
			return nil, ErrMessageTooShort
		}
		hostLen := int(binary.LittleEndian.Uint16(payload[offset : offset+2]))
		offset += 2
		if offset+hostLen+2 > len(payload) {
			return nil, ErrMessageTooShort
		}
		host := string(payload[offset : offset+hostLen])
		offset += hostLen
		port := binary.LittleEndian.Uint16(payload[offset : offset+2])
		offset += 2

		peers = append(peers, joinHostPort(host, port))
	}

	return peers, nil
}
