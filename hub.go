/*
File Name:  hub.go
Author:     Eastsea Contributors

The node hub: a TCP listener plus the set of active peer sessions and
the msg_type dispatch table. Grounded on the teacher's Network.go
AutoAssignPort retry-then-random-port shape (adapted here from UDP
bind-retry to TCP port+1 retry), Networks.go's single mutex guarding a
slice of networks (generalized to a map of sessions keyed by
SessionID), and Network.go's packetWorker dispatch switch (decode, look
up the registered handler by command, call it).
*/

package eastsea

import (
	"context"
	"errors"
	"log"
	"net"
	"strconv"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
	"github.com/kjaylee/eastsea-node-sub000/protocol"
)

// MaxBindRetries bounds how many times Start retries with port+1 on
// address-in-use.
const MaxBindRetries = 10

// Reserved handler ranges, per spec.md §4.4: 10-15 for DHT, 20-24 for
// bootstrap. Declared here purely as documentation for callers wiring
// RegisterHandler; this package does not enforce the range.
const (
	DHTHandlerRangeStart       = 10
	DHTHandlerRangeEnd         = 15
	BootstrapHandlerRangeStart = 20
	BootstrapHandlerRangeEnd   = 24
)

// Dial error classes distinguished by Connect.
var (
	ErrConnRefused     = errors.New("eastsea: connection refused")
	ErrConnUnreachable = errors.New("eastsea: host or network unreachable")
	ErrConnTimeout     = errors.New("eastsea: connection timed out")
)

// HandlerFunc processes one received frame for a given session.
type HandlerFunc func(s *Session, msgType byte, payload []byte)

// Hub owns a listener and the set of currently connected peer sessions.
type Hub struct {
	LocalID [32]byte

	mu        sync.RWMutex
	listener  net.Listener
	sessions  map[uuid.UUID]*Session
	handlers  map[byte]HandlerFunc
	blacklist *Blacklist
	features  byte

	stopOnce sync.Once
	done     chan struct{}
}

// SetBlacklist installs the ban list consulted at handshake time. A nil
// list (the default) disables enforcement.
func (h *Hub) SetBlacklist(b *Blacklist) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blacklist = b
}

// SetFeatures installs the capability bitfield advertised to peers this
// hub connects to from now on, via the features frame sent right after
// the handshake. It does not retroactively re-advertise to sessions
// already established.
func (h *Hub) SetFeatures(features byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.features = features
}

// NewHub constructs a hub identified by localID, with the default
// handler registrations for ping/pong and the pass-through chain-layer
// message types already installed.
func NewHub(localID [32]byte) *Hub {
	h := &Hub{
		LocalID:  localID,
		sessions: make(map[uuid.UUID]*Session),
		handlers: make(map[byte]HandlerFunc),
		done:     make(chan struct{}),
	}

	h.RegisterHandler(protocol.MsgPing, func(s *Session, _ byte, _ []byte) {
		s.Send(protocol.MsgPong, []byte("pong"))
	})
	h.RegisterHandler(protocol.MsgPong, func(s *Session, _ byte, _ []byte) {
		s.MarkPong()
	})
	// Block and transaction payloads round-trip opaquely; the chain layer
	// that would interpret them is out of scope here.
	h.RegisterHandler(protocol.MsgBlock, func(*Session, byte, []byte) {})
	h.RegisterHandler(protocol.MsgTransaction, func(*Session, byte, []byte) {})
	h.RegisterHandler(protocol.MsgHandshake, h.handleHandshake)
	h.RegisterHandler(protocol.MsgFeatures, h.handleFeatures)

	return h
}

// handleHandshake records the peer's node ID and closes the session if
// that ID is currently banned, mirroring the teacher's AddBlackList
// being consulted before a peer is kept on the active peer list.
func (h *Hub) handleHandshake(s *Session, _ byte, payload []byte) {
	id, ok := parseHandshake(payload)
	if !ok {
		return
	}
	s.setRemoteID(id)

	h.mu.RLock()
	blacklist := h.blacklist
	h.mu.RUnlock()

	if blacklist.IsBanned(id) {
		s.Close()
	}
}

// handleFeatures records the peer's advertised capability bitfield, sent
// as the msg_type=4 frame immediately following its handshake.
func (h *Hub) handleFeatures(s *Session, _ byte, payload []byte) {
	features, ok := parseFeatures(payload)
	if !ok {
		return
	}
	s.setRemoteFeatures(features)
}

// Start binds port on all interfaces, retrying at port+1 up to
// MaxBindRetries times on address-in-use.
func (h *Hub) Start(port int) (boundPort int, err error) {
	for attempt := 0; attempt <= MaxBindRetries; attempt++ {
		tryPort := port + attempt
		listener, bindErr := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(tryPort)))
		if bindErr == nil {
			h.mu.Lock()
			h.listener = listener
			h.mu.Unlock()
			return listener.Addr().(*net.TCPAddr).Port, nil
		}
		if !errors.Is(bindErr, syscall.EADDRINUSE) {
			return 0, bindErr
		}
		err = bindErr
	}
	return 0, err
}

// AcceptLoop accepts new connections until ctx is cancelled or the
// listener is closed, wrapping each into a Session and starting its
// receive loop.
func (h *Hub) AcceptLoop(ctx context.Context) error {
	for {
		h.mu.RLock()
		listener := h.listener
		h.mu.RUnlock()
		if listener == nil {
			return errors.New("eastsea: hub not started")
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-h.done:
				return nil
			default:
			}
			return err
		}

		session := NewSession(conn)
		h.addSession(session)
		go h.HandlePeer(ctx, session)
	}
}

// Connect dials remote, wraps the connection in a session, sends the
// handshake frame, and registers the session.
func (h *Hub) Connect(ctx context.Context, remote string) (*Session, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", remote)
	if err != nil {
		return nil, classifyDialError(err)
	}

	session := NewSession(conn)
	if err := session.Send(protocol.MsgHandshake, handshakePayload(h.LocalID)); err != nil {
		session.Close()
		return nil, err
	}

	h.mu.RLock()
	features := h.features
	h.mu.RUnlock()
	if err := session.Send(protocol.MsgFeatures, featuresPayload(features)); err != nil {
		session.Close()
		return nil, err
	}

	h.addSession(session)
	go h.HandlePeer(ctx, session)

	return session, nil
}

// IsConnected reports whether a session to remote is currently tracked.
// The node binary's adapters for the autodiscovery.Connector and
// bootstrap.Connector interfaces forward to it.
func (h *Hub) IsConnected(remote string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if s.RemoteAddr == remote {
			return true
		}
	}
	return false
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s.SessionID] = s
	h.mu.Unlock()
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.SessionID)
	h.mu.Unlock()
}

// HandlePeer runs a session's receive loop: decode a frame, dispatch to
// its registered handler, repeat until the stream errors or ctx is
// cancelled. A per-session I/O error removes only that session.
func (h *Hub) HandlePeer(ctx context.Context, s *Session) {
	defer func() {
		h.removeSession(s)
		s.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, payload, err := s.Receive()
		if err != nil {
			return
		}

		h.mu.RLock()
		handler := h.handlers[msgType]
		h.mu.RUnlock()

		if handler == nil {
			continue
		}

		// A handler panic or logic error must not take down the peer's
		// receive loop; only the session's own I/O errors do that.
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("eastsea: handler for msg_type %d panicked: %v", msgType, r)
				}
			}()
			handler(s, msgType, payload)
		}()
	}
}

// Broadcast sends msgType/payload to every currently connected session.
// Per-peer send errors are logged but do not abort the broadcast.
func (h *Hub) Broadcast(msgType byte, payload []byte) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Send(msgType, payload); err != nil {
			log.Printf("eastsea: broadcast to %s failed: %v", s.RemoteAddr, err)
		}
	}
}

// RegisterHandler installs the dispatch target for msgType.
func (h *Hub) RegisterHandler(msgType byte, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[msgType] = fn
}

// PingAll sends a ping frame on every connected session.
func (h *Hub) PingAll() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Ping(); err != nil {
			log.Printf("eastsea: ping to %s failed: %v", s.RemoteAddr, err)
		}
	}
}

// SessionCount returns the number of currently tracked sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stop closes the listener, which unblocks AcceptLoop, and signals any
// loops observing Done.
func (h *Hub) Stop() error {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.RLock()
	listener := h.listener
	h.mu.RUnlock()

	if listener != nil {
		return listener.Close()
	}
	return nil
}

// classifyDialError maps a raw dial error into one of the hub's known
// failure classes by inspecting the underlying *net.OpError/syscall
// error, per spec.md §4.4's requirement that refused/unreachable/timed-out
// be distinguishable in the returned error.
func classifyDialError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnRefused
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return ErrConnUnreachable
	}
	return err
}
