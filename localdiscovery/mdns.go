/*
File Name:  mdns.go
Author:     Eastsea Contributors

mDNS-style service announcement over 224.0.0.251:5353 (and, best-effort,
its IPv6 counterpart ff02::fb), built with miekg/dns. Grounded on the
teacher's Network IPv6 Multicast.go control flow ("open the multicast
socket per interface; if a given interface can't join, keep going, and
if none can the feature stays usable but inert") for JoinV6's per-
interface ipv6.PacketConn.JoinGroup loop, adapted here from IPv6 peer
announcement to IPv4/IPv6 mDNS record transmission — the teacher's own
multicast groundwork is UDP-socket plumbing this module reuses, not DNS
encoding (the teacher predates this module's mDNS requirement
entirely).
*/

package localdiscovery

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/miekg/dns"
	"golang.org/x/net/ipv6"
)

// MDNSMulticastAddr is the standard mDNS multicast group and port.
const MDNSMulticastAddr = "224.0.0.251:5353"

// MDNSMulticastAddrV6 is the IPv6 mDNS multicast group and port.
const MDNSMulticastAddrV6 = "[ff02::fb]:5353"

// ServiceType is the mDNS service type this node advertises under.
const ServiceType = "_eastsea._tcp.local."

// TXTVersion is the version string carried in the TXT record.
const TXTVersion = "version=1.0"

// MDNSAnnouncer builds and (when possible) transmits mDNS service records
// announcing this node on the local network segment.
type MDNSAnnouncer struct {
	Instance string // e.g. "eastsea-node-a1b2c3d4e5f6a7b8"
	Address  string
	Port     uint16

	conn   *net.UDPConn
	connV6 *ipv6.PacketConn

	// limited is true once the multicast socket failed to open; Announce
	// and Query remain callable but are no-ops, per spec.md §4.8.
	limited bool

	// limitedV6 is true once IPv6 multicast join failed on every local
	// interface; it stays false while JoinV6 has not been called.
	limitedV6 bool
}

// NewMDNSAnnouncer creates an announcer with a freshly generated instance name.
func NewMDNSAnnouncer(address string, port uint16) (*MDNSAnnouncer, error) {
	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return nil, err
	}

	return &MDNSAnnouncer{
		Instance: fmt.Sprintf("eastsea-node-%s", hex.EncodeToString(suffix)),
		Address:  address,
		Port:     port,
	}, nil
}

// Join attempts to bind the mDNS multicast socket. On failure the
// announcer silently enters limited mode: Announce/Query remain callable
// and return cleanly, producing no multicast traffic.
func (m *MDNSAnnouncer) Join() {
	group, err := net.ResolveUDPAddr("udp4", MDNSMulticastAddr)
	if err != nil {
		m.limited = true
		return
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		m.limited = true
		return
	}

	m.conn = conn
}

// Limited reports whether the announcer is operating without multicast
// transport.
func (m *MDNSAnnouncer) Limited() bool {
	return m.limited
}

// JoinV6 attempts to join the IPv6 mDNS multicast group ff02::fb on
// every multicast-capable local interface. It succeeds as soon as one
// interface joins; if none do, the announcer enters IPv6-limited mode
// and LimitedV6 reports true.
func (m *MDNSAnnouncer) JoinV6() error {
	packetConn, err := net.ListenPacket("udp6", MDNSMulticastAddrV6)
	if err != nil {
		m.limitedV6 = true
		return err
	}

	group := &net.UDPAddr{IP: net.ParseIP("ff02::fb")}
	pc := ipv6.NewPacketConn(packetConn)

	ifaces, err := net.Interfaces()
	if err != nil {
		packetConn.Close()
		m.limitedV6 = true
		return err
	}

	joined := false
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if pc.JoinGroup(iface, group) == nil {
			joined = true
		}
	}

	if !joined {
		packetConn.Close()
		m.limitedV6 = true
		return fmt.Errorf("localdiscovery: no interface joined %s", MDNSMulticastAddrV6)
	}

	m.connV6 = pc
	return nil
}

// LimitedV6 reports whether a JoinV6 attempt failed to join on every
// interface. It reads false before JoinV6 is called.
func (m *MDNSAnnouncer) LimitedV6() bool {
	return m.limitedV6
}

// Close releases the multicast sockets, if open.
func (m *MDNSAnnouncer) Close() error {
	var err error
	if m.conn != nil {
		err = m.conn.Close()
	}
	if m.connV6 != nil {
		if v6Err := m.connV6.Close(); v6Err != nil && err == nil {
			err = v6Err
		}
	}
	return err
}

// buildRecords constructs this announcer's PTR/SRV/TXT record set.
func (m *MDNSAnnouncer) buildRecords() *dns.Msg {
	instanceFQDN := m.Instance + "." + ServiceType

	ptr := &dns.PTR{
		Hdr: dns.RR_Header{Name: ServiceType, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120},
		Ptr: instanceFQDN,
	}
	srv := &dns.SRV{
		Hdr:      dns.RR_Header{Name: instanceFQDN, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 120},
		Priority: 0,
		Weight:   0,
		Port:     m.Port,
		Target:   dns.Fqdn(m.Address),
	}
	txt := &dns.TXT{
		Hdr: dns.RR_Header{Name: instanceFQDN, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 120},
		Txt: []string{TXTVersion},
	}

	msg := new(dns.Msg)
	msg.Response = true
	msg.Answer = append(msg.Answer, ptr, srv, txt)
	return msg
}

// writeV6 best-effort transmits packed onto the IPv6 multicast group;
// failures here never surface, since the IPv4 path is authoritative and
// IPv6 is a supplemental reach extension.
func (m *MDNSAnnouncer) writeV6(packed []byte) {
	if m.connV6 == nil {
		return
	}
	dest := &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}
	m.connV6.WriteTo(packed, nil, dest)
}

// Announce transmits this node's service records to the mDNS multicast
// group. In limited mode it is a no-op that returns nil.
func (m *MDNSAnnouncer) Announce() error {
	if m.limited || m.conn == nil {
		return nil
	}

	packed, err := m.buildRecords().Pack()
	if err != nil {
		return err
	}

	group, err := net.ResolveUDPAddr("udp4", MDNSMulticastAddr)
	if err != nil {
		return err
	}

	_, err = m.conn.WriteToUDP(packed, group)
	m.writeV6(packed)
	return err
}

// Query sends a PTR query for ServiceType. In limited mode it is a no-op
// that returns nil.
func (m *MDNSAnnouncer) Query() error {
	if m.limited || m.conn == nil {
		return nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(ServiceType, dns.TypePTR)

	packed, err := msg.Pack()
	if err != nil {
		return err
	}

	group, err := net.ResolveUDPAddr("udp4", MDNSMulticastAddr)
	if err != nil {
		return err
	}

	_, err = m.conn.WriteToUDP(packed, group)
	m.writeV6(packed)
	return err
}

// ParseAnnouncement extracts the advertised (address, port) from a raw
// mDNS response containing an SRV record, for use by a receive loop.
func ParseAnnouncement(raw []byte) (address string, port uint16, ok bool) {
	msg := new(dns.Msg)
	if err := msg.Unpack(raw); err != nil {
		return "", 0, false
	}

	for _, rr := range msg.Answer {
		if srv, isSRV := rr.(*dns.SRV); isSRV {
			return srv.Target, srv.Port, true
		}
	}
	return "", 0, false
}
