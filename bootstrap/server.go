/*
File Name:  server.go
Author:     Eastsea Contributors

Bootstrap server: maintains the bounded known-peer set and answers
peer_list_request / node_announcement. Grounded on the teacher's
rootPeers map and countConnectedRootPeers bookkeeping in Bootstrap.go,
replacing the ECDSA-public-key keying with plain host:port addressing and
the unbounded map with a max_peers-capped, oldest-evicted one.
*/

package bootstrap

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultMaxPeers is the default bound on the server's known-peer set.
const DefaultMaxPeers = 1000

// Server answers bootstrap requests from other nodes.
type Server struct {
	Connector Connector // may be nil if the server only ever replies, never dials out

	mu       sync.Mutex
	peers    map[string]time.Time
	maxPeers int
}

// NewServer creates a bootstrap server bounded to maxPeers known peers
// (DefaultMaxPeers if maxPeers <= 0).
func NewServer(maxPeers int, connector Connector) *Server {
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}
	return &Server{Connector: connector, peers: make(map[string]time.Time), maxPeers: maxPeers}
}

// KnownPeers returns the current known-peer address list.
func (s *Server) KnownPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.peers))
	for addr := range s.peers {
		out = append(out, addr)
	}
	return out
}

func (s *Server) recordPeer(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.peers[addr]; !known && len(s.peers) >= s.maxPeers {
		s.evictOldestLocked()
	}
	s.peers[addr] = time.Now()
}

func (s *Server) evictOldestLocked() {
	var oldestAddr string
	var oldestSeen time.Time
	first := true

	for addr, seen := range s.peers {
		if first || seen.Before(oldestSeen) {
			oldestAddr, oldestSeen, first = addr, seen, false
		}
	}

	if oldestAddr != "" {
		delete(s.peers, oldestAddr)
	}
}

// HandlePeerListRequest replies to the requester with the known-peer set,
// encoded per EncodePeerList.
func (s *Server) HandlePeerListRequest(sender Sender, _ byte, payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		log.Printf("bootstrap: malformed peer_list_request: %v", err)
		return
	}

	resp := Message{
		Type:      MsgPeerListResponse,
		RequestID: msg.RequestID,
		Payload:   EncodePeerList(s.KnownPeers()),
	}
	if err := sender.Send(MsgPeerListResponse, resp.Encode()); err != nil {
		log.Printf("bootstrap: peer_list_response send failed: %v", err)
	}
}

// HandleNodeAnnouncement records the announcer's address and, if a
// Connector is configured and the address isn't already connected,
// attempts to connect to it.
func (s *Server) HandleNodeAnnouncement(_ Sender, _ byte, payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		log.Printf("bootstrap: malformed node_announcement: %v", err)
		return
	}

	addr := joinHostPort(msg.Address, msg.Port)
	s.recordPeer(addr)

	if s.Connector != nil && !s.Connector.IsConnected(addr) {
		go func() {
			if _, err := s.Connector.Connect(context.Background(), addr); err != nil {
				log.Printf("bootstrap: could not connect to announced peer %s: %v", addr, err)
			}
		}()
	}
}
