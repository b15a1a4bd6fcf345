/*
File Name:  client.go
Author:     Eastsea Contributors

Bootstrap client: contacts a configured seed list and folds in peers
learned from their responses. Grounded on the teacher's bootstrap()/
contactRootPeers() shape in Bootstrap.go, simplified from its two-phase
(7s then 5min) retry schedule into the fixed 3-attempts-at-1s cadence this
module's specification calls for, and from per-seed ECDSA identity to
plain host:port addressing.

Connector and Sender are defined here, not imported from the node hub
package, so that this package never imports it; the hub's *Session type
satisfies Sender structurally, and main wiring supplies a small adapter
satisfying Connector.
*/

package bootstrap

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// Sender is anything a bootstrap message can be sent over.
type Sender interface {
	Send(msgType byte, payload []byte) error
	Close() error
}

// Connector dials a remote peer and reports on existing connections.
type Connector interface {
	Connect(ctx context.Context, remote string) (Sender, error)
	IsConnected(remote string) bool
}

// Broadcaster sends a message to every connected peer.
type Broadcaster interface {
	Broadcast(msgType byte, payload []byte)
}

// ErrNoBootstrapNodes is returned when the seed list is empty.
var ErrNoBootstrapNodes = errors.New("bootstrap: seed list is empty")

// ErrConnectionFailed is returned when every configured seed was
// unreachable.
var ErrConnectionFailed = errors.New("bootstrap: no seed could be reached")

// retryAttempts and retrySpacing govern how persistently the client
// chases peers learned from a peer_list_response.
const (
	retryAttempts = 3
	retrySpacing  = time.Second
)

// Client drives the bootstrap protocol's client-side operations.
type Client struct {
	Connector    Connector
	Broadcaster  Broadcaster
	LocalAddress string
	LocalPort    uint16
	Seeds        []string
}

// Bootstrap contacts every configured seed except the local address,
// sending bootstrap_request then peer_list_request to each reachable one.
// Success requires at least one seed to have been reached.
func (c *Client) Bootstrap(ctx context.Context) error {
	if len(c.Seeds) == 0 {
		return ErrNoBootstrapNodes
	}

	localAddr := joinHostPort(c.LocalAddress, c.LocalPort)

	reached := 0
	for _, seed := range c.Seeds {
		if seed == localAddr {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.contactSeed(seed); err != nil {
			log.Printf("bootstrap: seed %s unreachable: %v", seed, err)
			continue
		}
		reached++
	}

	if reached == 0 {
		return ErrConnectionFailed
	}
	return nil
}

func (c *Client) contactSeed(seed string) error {
	sender, err := c.Connector.Connect(context.Background(), seed)
	if err != nil {
		return err
	}

	bootstrapReq := Message{Type: MsgBootstrapRequest, RequestID: uuid.New(), Address: c.LocalAddress, Port: c.LocalPort}
	if err := sender.Send(MsgBootstrapRequest, bootstrapReq.Encode()); err != nil {
		return err
	}

	peerListReq := Message{Type: MsgPeerListRequest, RequestID: uuid.New(), Address: c.LocalAddress, Port: c.LocalPort}
	return sender.Send(MsgPeerListRequest, peerListReq.Encode())
}

// Announce broadcasts a node_announcement carrying this node's own
// "<address>:<port>".
func (c *Client) Announce(ctx context.Context) {
	addr := joinHostPort(c.LocalAddress, c.LocalPort)
	msg := Message{
		Type:      MsgNodeAnnouncement,
		RequestID: uuid.New(),
		Address:   c.LocalAddress,
		Port:      c.LocalPort,
		Payload:   []byte(addr),
	}
	c.Broadcaster.Broadcast(MsgNodeAnnouncement, msg.Encode())
}

// HandlePeerListResponse decodes a peer_list_response and connects to
// every learned peer not already connected, retrying each candidate up to
// retryAttempts times spaced retrySpacing apart. It returns promptly; the
// connection attempts run in the background.
func (c *Client) HandlePeerListResponse(_ Sender, _ byte, payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		log.Printf("bootstrap: malformed peer_list_response: %v", err)
		return
	}

	peers, err := DecodePeerListFlexible(msg.Payload)
	if err != nil {
		log.Printf("bootstrap: could not parse peer list: %v", err)
		return
	}

	go c.connectToPeers(peers)
}

func (c *Client) connectToPeers(peers []string) {
	for _, addr := range peers {
		if c.Connector.IsConnected(addr) {
			continue
		}

		for attempt := 0; attempt < retryAttempts; attempt++ {
			if _, err := c.Connector.Connect(context.Background(), addr); err == nil {
				break
			}
			time.Sleep(retrySpacing)
		}
	}
}
