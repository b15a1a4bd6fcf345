/*
File Name:  message.go
Author:     Eastsea Contributors

Wire codec for DHT-specific messages, carried as the payload of a
protocol.Frame whose msg_type falls in the 10-15 DHT reservation. Adapted
from the teacher's dht message shapes (DHT Lite.go, Information Request.go),
replaced here with a fixed, explicit header instead of the teacher's
gob-style encoding, since this module favors a hand-rolled binary layout
consistent with protocol.Frame's own style.

Offset  Size   Info
0       1      msg_type (Ping/Pong/FindNode/FindNodeResponse/Store/StoreResponse)
1       16     request_id (UUID)
17      32     sender_id (NodeID)
49      4      payload_length (little-endian)
53      ?      payload
*/

package dht

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// Reserved DHT message types, per the node hub's 10-15 reservation.
const (
	MsgPing             byte = 10
	MsgPong             byte = 11
	MsgFindNode         byte = 12
	MsgFindNodeResponse byte = 13
	MsgStore            byte = 14
	MsgStoreResponse    byte = 15
)

// MessageHeaderSize is the fixed size of a DHT message header, excluding
// its payload.
const MessageHeaderSize = 1 + 16 + nodeid.Size + 4

// ErrMessageTooShort is returned when decoding a buffer shorter than a
// full header, or one whose declared payload length overruns the buffer.
var ErrMessageTooShort = errors.New("dht: message shorter than declared length")

// Message is a decoded DHT protocol message.
type Message struct {
	Type      byte
	RequestID uuid.UUID
	SenderID  nodeid.ID
	Payload   []byte
}

// Encode serializes m into its wire form.
func (m Message) Encode() []byte {
	buf := make([]byte, MessageHeaderSize+len(m.Payload))
	buf[0] = m.Type
	copy(buf[1:17], m.RequestID[:])
	copy(buf[17:17+nodeid.Size], m.SenderID[:])
	binary.LittleEndian.PutUint32(buf[49:53], uint32(len(m.Payload)))
	copy(buf[MessageHeaderSize:], m.Payload)
	return buf
}

// DecodeMessage parses a DHT message from its wire form.
func DecodeMessage(raw []byte) (Message, error) {
	if len(raw) < MessageHeaderSize {
		return Message{}, ErrMessageTooShort
	}

	var m Message
	m.Type = raw[0]

	requestID, err := uuid.FromBytes(raw[1:17])
	if err != nil {
		return Message{}, err
	}
	m.RequestID = requestID

	copy(m.SenderID[:], raw[17:17+nodeid.Size])

	length := binary.LittleEndian.Uint32(raw[49:53])
	if int(length) > len(raw)-MessageHeaderSize {
		return Message{}, ErrMessageTooShort
	}
	m.Payload = append([]byte(nil), raw[MessageHeaderSize:MessageHeaderSize+int(length)]...)

	return m, nil
}

// EncodeFindNodeResponse serializes a list of peer contacts for a
// find_node_response payload: count (4 bytes LE) followed by, per entry,
// sender_id (32 bytes), 2-byte LE address length + address, 2-byte LE port.
func EncodeFindNodeResponse(peers []PeerRecord) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(peers)))

	for _, p := range peers {
		entry := make([]byte, nodeid.Size+2+len(p.Address)+2)
		copy(entry[0:nodeid.Size], p.ID[:])
		binary.LittleEndian.PutUint16(entry[nodeid.Size:nodeid.Size+2], uint16(len(p.Address)))
		copy(entry[nodeid.Size+2:nodeid.Size+2+len(p.Address)], p.Address)
		binary.LittleEndian.PutUint16(entry[len(entry)-2:], p.Port)
		buf = append(buf, entry...)
	}

	return buf
}

// DecodeFindNodeResponse parses the payload produced by EncodeFindNodeResponse.
func DecodeFindNodeResponse(payload []byte) ([]PeerRecord, error) {
	if len(payload) < 4 {
		return nil, ErrMessageTooShort
	}

	count := binary.LittleEndian.Uint32(payload[0:4])
	offset := 4

	peers := make([]PeerRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset+nodeid.Size+2 > len(payload) {
			return nil, ErrMessageTooShort
		}

		var id nodeid.ID
		copy(id[:], payload[offset:offset+nodeid.Size])
		offset += nodeid.Size

		addrLen := int(binary.LittleEndian.Uint16(payload[offset : offset+2]))
		offset += 2
		if offset+addrLen+2 > len(payload) {
			return nil, ErrMessageTooShort
		}

		address := string(payload[offset : offset+addrLen])
		offset += addrLen

		port := binary.LittleEndian.Uint16(payload[offset : offset+2])
		offset += 2

		peers = append(peers, PeerRecord{ID: id, Address: address, Port: port})
	}

	return peers, nil
}
