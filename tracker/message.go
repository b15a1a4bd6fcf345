/*
File Name:  message.go
Author:     Eastsea Contributors

Tracker wire format, per spec.md §4.10/§6: a 37-byte fixed header
(1-byte message_type, 32-byte node_id, 2-byte port, 2-byte peer_count)
followed by peer_count 46-byte peer records (4-byte IPv4, 2-byte port,
32-byte node_id, 8-byte last_seen as Unix seconds). All integers are
little-endian, matching the rest of this module's wire codecs.
*/

package tracker

import (
	"encoding/binary"
	"errors"
	"net"
	"time"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// Message types exchanged with the tracker.
const (
	MsgAnnounce  byte = 1
	MsgGetPeers  byte = 2
	MsgPeerList  byte = 3
	MsgHeartbeat byte = 4
	MsgError     byte = 255
)

// HeaderSize is the fixed portion of every tracker message.
const HeaderSize = 1 + nodeid.Size + 2 + 2

// PeerRecordSize is the size of one encoded peer record.
const PeerRecordSize = 4 + 2 + nodeid.Size + 8

var (
	ErrMessageTooShort = errors.New("tracker: message shorter than its header")
	ErrPeerCountMismatch = errors.New("tracker: declared peer_count does not match payload length")
	ErrNotIPv4           = errors.New("tracker: peer address is not an IPv4 address")
)

// PeerRecord is one entry in a PEER_LIST reply.
type PeerRecord struct {
	IP       net.IP
	Port     uint16
	NodeID   nodeid.ID
	LastSeen time.Time
}

// Message is a single tracker request or reply.
type Message struct {
	Type   byte
	NodeID nodeid.ID
	Port   uint16
	Peers  []PeerRecord
}

// Encode serializes a Message to its wire form.
func (m Message) Encode() ([]byte, error) {
	buf := make([]byte, HeaderSize+len(m.Peers)*PeerRecordSize)

	buf[0] = m.Type
	copy(buf[1:1+nodeid.Size], m.NodeID[:])
	binary.LittleEndian.PutUint16(buf[1+nodeid.Size:3+nodeid.Size], m.Port)
	binary.LittleEndian.PutUint16(buf[3+nodeid.Size:5+nodeid.Size], uint16(len(m.Peers)))

	offset := HeaderSize
	for _, peer := range m.Peers {
		ip4 := peer.IP.To4()
		if ip4 == nil {
			return nil, ErrNotIPv4
		}
		copy(buf[offset:offset+4], ip4)
		binary.LittleEndian.PutUint16(buf[offset+4:offset+6], peer.Port)
		copy(buf[offset+6:offset+6+nodeid.Size], peer.NodeID[:])
		binary.LittleEndian.PutUint64(buf[offset+6+nodeid.Size:offset+PeerRecordSize], uint64(peer.LastSeen.Unix()))
		offset += PeerRecordSize
	}

	return buf, nil
}

// DecodeMessage parses a Message from its wire form.
func DecodeMessage(raw []byte) (Message, error) {
	if len(raw) < HeaderSize {
		return Message{}, ErrMessageTooShort
	}

	var m Message
	m.Type = raw[0]
	copy(m.NodeID[:], raw[1:1+nodeid.Size])
	m.Port = binary.LittleEndian.Uint16(raw[1+nodeid.Size : 3+nodeid.Size])
	peerCount := binary.LittleEndian.Uint16(raw[3+nodeid.Size : 5+nodeid.Size])

	remaining := raw[HeaderSize:]
	if len(remaining) != int(peerCount)*PeerRecordSize {
		return Message{}, ErrPeerCountMismatch
	}

	m.Peers = make([]PeerRecord, 0, peerCount)
	offset := 0
	for i := 0; i < int(peerCount); i++ {
		rec := remaining[offset : offset+PeerRecordSize]

		ip := make(net.IP, 4)
		copy(ip, rec[0:4])

		var id nodeid.ID
		copy(id[:], rec[6:6+nodeid.Size])

		lastSeen := time.Unix(int64(binary.LittleEndian.Uint64(rec[6+nodeid.Size:PeerRecordSize])), 0)

		m.Peers = append(m.Peers, PeerRecord{
			IP:       ip,
			Port:     binary.LittleEndian.Uint16(rec[4:6]),
			NodeID:   id,
			LastSeen: lastSeen,
		})
		offset += PeerRecordSize
	}

	return m, nil
}
