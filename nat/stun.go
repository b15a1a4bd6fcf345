/*
File Name:  stun.go
Author:     Eastsea Contributors

STUN binding client, simplified per spec.md §4.9 to use a TCP connection
to the STUN server instead of UDP (most public STUN servers also answer
on TCP; this keeps the module's transport story uniform). Message
encoding/decoding is done with pion/stun rather than hand-rolled, which
the teacher's own codebase had no equivalent for — grounded on the rest
of the example pack's use of pion/stun for RFC 5389 binding requests.
*/

package nat

import (
	"errors"
	"net"
	"time"

	"github.com/pion/stun"
)

// DefaultServers is the hard-coded STUN server list this client tries in
// order until one answers.
var DefaultServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
	"stun.stunprotocol.org:3478",
}

// DialTimeout bounds each server connection attempt.
const DialTimeout = 5 * time.Second

// ErrNoMappedAddress is returned when a STUN response contains neither a
// MAPPED-ADDRESS nor an XOR-MAPPED-ADDRESS attribute.
var ErrNoMappedAddress = errors.New("nat: STUN response has no mapped address")

// ErrAllServersFailed is returned when the server list is empty. When
// every listed server fails, the last server's error is returned instead.
var ErrAllServersFailed = errors.New("nat: no STUN server responded")

// Binding is the resolved public reflexive address.
type Binding struct {
	IP   net.IP
	Port uint16
}

// StunBindingRequest tries each server in DefaultServers in turn over TCP,
// returning the first successfully resolved binding.
func StunBindingRequest() (Binding, error) {
	return stunBindingRequest(DefaultServers)
}

func stunBindingRequest(servers []string) (Binding, error) {
	var lastErr error
	for _, server := range servers {
		binding, err := queryServer(server)
		if err != nil {
			lastErr = err
			continue
		}
		return binding, nil
	}

	if lastErr != nil {
		return Binding{}, lastErr
	}
	return Binding{}, ErrAllServersFailed
}

func queryServer(server string) (Binding, error) {
	conn, err := net.DialTimeout("tcp", server, DialTimeout)
	if err != nil {
		return Binding{}, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(DialTimeout))

	request, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return Binding{}, err
	}

	if _, err := conn.Write(request.Raw); err != nil {
		return Binding{}, err
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return Binding{}, err
	}

	return decodeBindingResponse(buf[:n])
}

// decodeBindingResponse extracts a Binding from a raw STUN message,
// preferring XOR-MAPPED-ADDRESS over MAPPED-ADDRESS per spec.md §4.9.
func decodeBindingResponse(raw []byte) (Binding, error) {
	msg := new(stun.Message)
	msg.Raw = raw
	if err := msg.Decode(); err != nil {
		return Binding{}, err
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(msg); err == nil {
		return Binding{IP: xorAddr.IP, Port: uint16(xorAddr.Port)}, nil
	}

	var mappedAddr stun.MappedAddress
	if err := mappedAddr.GetFrom(msg); err == nil {
		return Binding{IP: mappedAddr.IP, Port: uint16(mappedAddr.Port)}, nil
	}

	return Binding{}, ErrNoMappedAddress
}
