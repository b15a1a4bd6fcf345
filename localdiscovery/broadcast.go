/*
File Name:  broadcast.go
Author:     Eastsea Contributors

Fixed-layout UDP broadcast announcement packet. Grounded on the teacher's
Network IPv4 Broadcast.go (BroadcastIPv4Send/BroadcastIPv4Listen send/listen
split, networkToIPv4BroadcastIPs directed-broadcast derivation), replacing
its ECDSA-keyed protocol.PacketEncrypt envelope with a plain checksummed
struct since peer identity here is a NodeID, not a public key.

The packet's named fields sum to 59 bytes; a 26-byte reserved block pads
it to the fixed 85 bytes this module's specification calls for, covered by
the checksum like every other field so future use of those bytes would
still be detected by old clients as a checksum mismatch rather than silently
misparsed.

Offset  Size   Info
0       4      magic, ASCII "EAST"
4       4      version, =1
8       1      message_type (Announce=1, Response=2, Goodbye=3)
9       32     node_id
41      2      listen_port
43      4      services bitfield
47      8      timestamp, ms since epoch
55      26     reserved, zero-filled
81      4      checksum, CRC-32 over bytes 0-80
*/

package localdiscovery

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"net"
	"sync"
	"time"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// Magic is the 4-byte ASCII tag opening every broadcast packet.
var Magic = [4]byte{'E', 'A', 'S', 'T'}

// ProtocolVersion is the broadcast announcement's wire version.
const ProtocolVersion uint32 = 1

// Broadcast message types.
const (
	MsgAnnounce byte = 1
	MsgResponse byte = 2
	MsgGoodbye  byte = 3
)

// PacketSize is the fixed size of a broadcast announcement packet.
const PacketSize = 85

const reservedSize = 26

// SendInterval and StaleAfter govern the announcer's send cadence and the
// listener's age-out window.
const (
	SendInterval = 30 * time.Second
	StaleAfter   = 120 * time.Second
)

// BroadcastPort is the UDP port broadcast announcements are sent to.
const BroadcastPort = 12912

// ErrBadMagic is returned when a packet does not open with Magic.
var ErrBadMagic = errors.New("localdiscovery: invalid broadcast magic")

// ErrBadSize is returned when a packet is not exactly PacketSize bytes.
var ErrBadSize = errors.New("localdiscovery: broadcast packet has wrong size")

// ErrChecksumMismatch is returned when the trailing CRC-32 does not match.
var ErrChecksumMismatch = errors.New("localdiscovery: broadcast checksum mismatch")

// Packet is a decoded broadcast announcement.
type Packet struct {
	Type        byte
	NodeID      nodeid.ID
	ListenPort  uint16
	Services    uint32
	TimestampMs int64
}

// Encode serializes p into its fixed 85-byte wire form.
func (p Packet) Encode() []byte {
	buf := make([]byte, PacketSize)
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], ProtocolVersion)
	buf[8] = p.Type
	copy(buf[9:41], p.NodeID[:])
	binary.LittleEndian.PutUint16(buf[41:43], p.ListenPort)
	binary.LittleEndian.PutUint32(buf[43:47], p.Services)
	binary.LittleEndian.PutUint64(buf[47:55], uint64(p.TimestampMs))
	// bytes 55:81 stay zero (reserved)

	checksum := crc32.ChecksumIEEE(buf[0:81])
	binary.LittleEndian.PutUint32(buf[81:85], checksum)

	return buf
}

// DecodePacket parses a broadcast announcement packet, validating magic,
// size, and checksum.
func DecodePacket(raw []byte) (Packet, error) {
	if len(raw) != PacketSize {
		return Packet{}, ErrBadSize
	}
	if string(raw[0:4]) != string(Magic[:]) {
		return Packet{}, ErrBadMagic
	}

	checksum := binary.LittleEndian.Uint32(raw[81:85])
	if crc32.ChecksumIEEE(raw[0:81]) != checksum {
		return Packet{}, ErrChecksumMismatch
	}

	var p Packet
	p.Type = raw[8]
	copy(p.NodeID[:], raw[9:41])
	p.ListenPort = binary.LittleEndian.Uint16(raw[41:43])
	p.Services = binary.LittleEndian.Uint32(raw[43:47])
	p.TimestampMs = int64(binary.LittleEndian.Uint64(raw[47:55]))

	return p, nil
}

// seen tracks a peer last observed via broadcast, keyed by address.
type seen struct {
	peer     Packet
	address  string
	lastSeen time.Time
}

// BroadcastAnnouncer sends and listens for UDP broadcast announcements on
// the local network segment.
type BroadcastAnnouncer struct {
	NodeID     nodeid.ID
	ListenPort uint16
	Services   uint32

	conn *net.UDPConn

	mu      sync.Mutex
	peers   map[string]seen
	nowFunc func() time.Time
}

// NewBroadcastAnnouncer creates an announcer for the given node; it opens
// no socket (Listen does).
func NewBroadcastAnnouncer(nodeID nodeid.ID, listenPort uint16, services uint32) *BroadcastAnnouncer {
	return &BroadcastAnnouncer{
		NodeID:     nodeID,
		ListenPort: listenPort,
		Services:   services,
		peers:      make(map[string]seen),
		nowFunc:    time.Now,
	}
}

// Listen opens the UDP broadcast socket. Grounded on BroadcastIPv4's
// socket-open-then-spawn-listener shape.
func (b *BroadcastAnnouncer) Listen() error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: BroadcastPort})
	if err != nil {
		return err
	}
	b.conn = conn
	return nil
}

// Close shuts down the listening socket, if open.
func (b *BroadcastAnnouncer) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// Serve reads incoming packets off the listening socket and hands each to
// HandlePacket until ctx is cancelled or the socket is closed.
func (b *BroadcastAnnouncer) Serve(ctx context.Context) error {
	if b.conn == nil {
		return errors.New("localdiscovery: broadcast socket not open")
	}

	buf := make([]byte, PacketSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, from, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		b.HandlePacket(buf[:n], from.String())
	}
}

// broadcastAddresses mirrors the teacher's networkToIPv4BroadcastIPs: the
// limited-broadcast address plus the directed broadcast of every local
// IPv4 interface.
func broadcastAddresses() []net.IP {
	addrs := []net.IP{net.IPv4bcast}

	ifaces, err := net.Interfaces()
	if err != nil {
		return addrs
	}

	for _, iface := range ifaces {
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifaceAddrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			if directed := directedBroadcast(ipnet); directed != nil {
				addrs = append(addrs, directed)
			}
		}
	}

	return addrs
}

func directedBroadcast(ipnet *net.IPNet) net.IP {
	ip4 := ipnet.IP.To4()
	mask := ipnet.Mask
	if ip4 == nil || len(mask) != 4 {
		return nil
	}

	broadcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		broadcast[i] = ip4[i] | ^mask[i]
	}
	return broadcast
}

// Announce sends a single Announce packet to every local broadcast address.
func (b *BroadcastAnnouncer) Announce() error {
	return b.send(MsgAnnounce)
}

// Goodbye sends a single Goodbye packet, signaling immediate departure.
func (b *BroadcastAnnouncer) Goodbye() error {
	return b.send(MsgGoodbye)
}

func (b *BroadcastAnnouncer) send(msgType byte) error {
	if b.conn == nil {
		return errors.New("localdiscovery: broadcast socket not open")
	}

	packet := Packet{
		Type:        msgType,
		NodeID:      b.NodeID,
		ListenPort:  b.ListenPort,
		Services:    b.Services,
		TimestampMs: b.nowFunc().UnixMilli(),
	}
	raw := packet.Encode()

	var lastErr error
	for _, ip := range broadcastAddresses() {
		_, err := b.conn.WriteToUDP(raw, &net.UDPAddr{IP: ip, Port: BroadcastPort})
		if err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// HandlePacket processes a received broadcast packet from the given
// sender address, updating the seen-peers set. Goodbye removes the sender
// immediately.
func (b *BroadcastAnnouncer) HandlePacket(raw []byte, from string) error {
	packet, err := DecodePacket(raw)
	if err != nil {
		return err
	}
	if packet.NodeID.Equal(b.NodeID) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if packet.Type == MsgGoodbye {
		delete(b.peers, from)
		return nil
	}

	b.peers[from] = seen{peer: packet, address: from, lastSeen: b.nowFunc()}
	return nil
}

// ActivePeers returns addresses seen within StaleAfter, pruning anything older.
func (b *BroadcastAnnouncer) ActivePeers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	var active []string
	for addr, s := range b.peers {
		if now.Sub(s.lastSeen) > StaleAfter {
			delete(b.peers, addr)
			continue
		}
		active = append(active, addr)
	}
	return active
}
