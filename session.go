/*
File Name:  session.go
Author:     Eastsea Contributors

A single framed peer connection. Grounded on the teacher's Ping.go
(ping/pong send-and-timestamp bookkeeping) and Connection.go's
per-connection status/liveness fields (RLock/RUnlock around connection
state), generalized from the teacher's UDP virtual-connection model to a
single persistent TCP stream framed by the protocol package.
*/

package eastsea

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
	"github.com/kjaylee/eastsea-node-sub000/protocol"
)

// AliveWindow is how recently a session must have been pinged to be
// considered alive.
const AliveWindow = 60 * time.Second

// Session wraps one peer connection: a framed stream plus the liveness
// bookkeeping the hub and auto-discovery controller need.
type Session struct {
	conn       net.Conn
	RemoteAddr string
	SessionID  uuid.UUID

	mu             sync.Mutex
	connected      bool
	lastPing       time.Time
	pingSentAt     time.Time
	lastRTT        time.Duration
	rttKnown       bool
	remoteID       nodeid.ID
	hasID          bool
	remoteFeatures byte
	hasFeatures    bool

	packetsSent     uint64
	packetsReceived uint64

	closeOnce sync.Once
}

// NewSession wraps an established connection. The session starts
// connected; the caller is responsible for the handshake, if any.
func NewSession(conn net.Conn) *Session {
	return &Session{
		conn:       conn,
		RemoteAddr: conn.RemoteAddr().String(),
		SessionID:  uuid.New(),
		connected:  true,
		lastPing:   time.Now(),
	}
}

// Send writes a single framed message, counting it toward PacketsSent on
// success.
func (s *Session) Send(msgType byte, payload []byte) error {
	raw, err := protocol.EncodeFrame(msgType, payload)
	if err != nil {
		return err
	}
	if _, err = s.conn.Write(raw); err != nil {
		return err
	}
	atomic.AddUint64(&s.packetsSent, 1)
	return nil
}

// Receive blocks until one framed message arrives or the stream errors,
// counting successful reads toward PacketsReceived.
func (s *Session) Receive() (byte, []byte, error) {
	msgType, payload, err := protocol.DecodeFrame(s.conn)
	if err != nil {
		return msgType, payload, err
	}
	atomic.AddUint64(&s.packetsReceived, 1)
	return msgType, payload, nil
}

// PacketsSent returns the number of frames successfully written so far.
func (s *Session) PacketsSent() uint64 {
	return atomic.LoadUint64(&s.packetsSent)
}

// PacketsReceived returns the number of frames successfully decoded so far.
func (s *Session) PacketsReceived() uint64 {
	return atomic.LoadUint64(&s.packetsReceived)
}

// RTT returns the round-trip time measured between the most recent Ping
// and its matching MarkPong, and whether a round trip has completed yet.
func (s *Session) RTT() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRTT, s.rttKnown
}

// Ping sends a msg_type=0 "ping" frame and records the attempt time, both
// for liveness tracking and as the start of the next RTT measurement.
func (s *Session) Ping() error {
	s.mu.Lock()
	now := time.Now()
	s.lastPing = now
	s.pingSentAt = now
	s.mu.Unlock()

	return s.Send(protocol.MsgPing, []byte("ping"))
}

// MarkPong records that a pong was received: it refreshes liveness and,
// if a Ping is outstanding, completes the round-trip time measurement.
func (s *Session) MarkPong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if !s.pingSentAt.IsZero() {
		s.lastRTT = now.Sub(s.pingSentAt)
		s.rttKnown = true
		s.pingSentAt = time.Time{}
	}
	s.lastPing = now
}

// Close shuts down the underlying connection exactly once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// IsAlive reports whether the session is connected and was pinged (or
// received a pong) within AliveWindow.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && time.Since(s.lastPing) < AliveWindow
}

// handshakePayload builds the single msg_type=5 handshake frame payload.
func handshakePayload(localID [32]byte) []byte {
	return []byte(fmt.Sprintf("HANDSHAKE:%x", localID))
}

// handshakePrefix is the literal prefix of a handshake payload, before
// the hex-encoded node ID.
const handshakePrefix = "HANDSHAKE:"

// parseHandshake extracts the remote node ID from a handshake payload,
// per spec.md §4.4's "HANDSHAKE:" + hex(node_id) wire format.
func parseHandshake(payload []byte) (nodeid.ID, bool) {
	s := string(payload)
	if len(s) <= len(handshakePrefix) || s[:len(handshakePrefix)] != handshakePrefix {
		return nodeid.ID{}, false
	}
	id, err := nodeid.FromHex(s[len(handshakePrefix):])
	if err != nil {
		return nodeid.ID{}, false
	}
	return id, true
}

// RemoteID returns the peer's node ID and whether a handshake has set it.
func (s *Session) RemoteID() (nodeid.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID, s.hasID
}

// setRemoteID records the peer's node ID, learned from its handshake.
func (s *Session) setRemoteID(id nodeid.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteID = id
	s.hasID = true
}

// Capability bits carried by the msg_type=4 features frame that
// immediately follows a handshake.
const (
	FeatureIPv4Listen byte = 1 << iota
	FeatureIPv6Listen
	FeatureFirewalled
)

// featuresPayload builds the single-byte msg_type=4 features frame payload.
func featuresPayload(features byte) []byte {
	return []byte{features}
}

// parseFeatures extracts the features byte from a features frame payload.
func parseFeatures(payload []byte) (byte, bool) {
	if len(payload) != 1 {
		return 0, false
	}
	return payload[0], true
}

// RemoteFeatures returns the peer's advertised capability bitfield and
// whether a features frame has been received yet.
func (s *Session) RemoteFeatures() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteFeatures, s.hasFeatures
}

// setRemoteFeatures records the peer's advertised capability bitfield.
func (s *Session) setRemoteFeatures(features byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteFeatures = features
	s.hasFeatures = true
}
