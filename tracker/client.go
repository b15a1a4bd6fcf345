/*
File Name:  client.go
Author:     Eastsea Contributors

Thin client for the tracker's one-request-per-connection protocol. Each
call dials, writes a single request, reads the single reply, and closes
the connection — there is no persistent session to the tracker.
*/

package tracker

import (
	"net"
	"time"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

// DialTimeout bounds connecting to the tracker.
const DialTimeout = 5 * time.Second

// Client talks to a single tracker server.
type Client struct {
	Address string
	NodeID  nodeid.ID
	Port    uint16
}

// Announce registers this node with the tracker, replacing any prior
// record for the same node ID. The reply's peer list is ignored per
// spec (ANNOUNCE always replies with an empty PEER_LIST).
func (c *Client) Announce() error {
	_, err := c.roundTrip(Message{Type: MsgAnnounce, NodeID: c.NodeID, Port: c.Port})
	return err
}

// GetPeers fetches the tracker's current non-expired peer set.
func (c *Client) GetPeers() ([]PeerRecord, error) {
	reply, err := c.roundTrip(Message{Type: MsgGetPeers, NodeID: c.NodeID, Port: c.Port})
	if err != nil {
		return nil, err
	}
	return reply.Peers, nil
}

// Heartbeat refreshes this node's last_seen timestamp on the tracker.
func (c *Client) Heartbeat() error {
	_, err := c.roundTrip(Message{Type: MsgHeartbeat, NodeID: c.NodeID, Port: c.Port})
	return err
}

func (c *Client) roundTrip(req Message) (Message, error) {
	conn, err := net.DialTimeout("tcp", c.Address, DialTimeout)
	if err != nil {
		return Message{}, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(DialTimeout))

	if err := writeMessage(conn, req); err != nil {
		return Message{}, err
	}

	reply, _, err := readMessage(conn)
	return reply, err
}
