package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []byte
}

func (f *fakeSender) Send(msgType byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload...)
	return nil
}

func (f *fakeSender) Close() error { return nil }

type fakeConnector struct {
	mu          sync.Mutex
	unreachable map[string]bool
	connected   map[string]bool
	dialCount   map[string]int
}

func newFakeConnector(unreachable ...string) *fakeConnector {
	set := make(map[string]bool)
	for _, addr := range unreachable {
		set[addr] = true
	}
	return &fakeConnector{unreachable: set, connected: make(map[string]bool), dialCount: make(map[string]int)}
}

func (f *fakeConnector) Connect(ctx context.Context, remote string) (Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialCount[remote]++
	if f.unreachable[remote] {
		return nil, errors.New("connection refused")
	}
	f.connected[remote] = true
	return &fakeSender{}, nil
}

func (f *fakeConnector) IsConnected(remote string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[remote]
}

func TestClientBootstrapRequiresSeeds(t *testing.T) {
	c := &Client{Connector: newFakeConnector(), LocalAddress: "127.0.0.1", LocalPort: 9000}
	if err := c.Bootstrap(context.Background()); err != ErrNoBootstrapNodes {
		t.Fatalf("err = %v, want ErrNoBootstrapNodes", err)
	}
}

func TestClientBootstrapSkipsSelfAndSucceedsWithOneReachableSeed(t *testing.T) {
	connector := newFakeConnector("127.0.0.1:1")
	c := &Client{
		Connector:    connector,
		LocalAddress: "127.0.0.1",
		LocalPort:    9000,
		Seeds:        []string{"127.0.0.1:9000", "127.0.0.1:1", "10.0.0.5:9000"},
	}

	if err := c.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() = %v, want nil", err)
	}
	if connector.dialCount["127.0.0.1:9000"] != 0 {
		t.Fatalf("expected self-address to be skipped")
	}
	if !connector.connected["10.0.0.5:9000"] {
		t.Fatalf("expected reachable seed to be contacted")
	}
}

func TestClientBootstrapFailsWhenAllSeedsUnreachable(t *testing.T) {
	connector := newFakeConnector("10.0.0.1:9000", "10.0.0.2:9000")
	c := &Client{
		Connector:    connector,
		LocalAddress: "127.0.0.1",
		LocalPort:    9000,
		Seeds:        []string{"10.0.0.1:9000", "10.0.0.2:9000"},
	}

	if err := c.Bootstrap(context.Background()); err != ErrConnectionFailed {
		t.Fatalf("err = %v, want ErrConnectionFailed", err)
	}
}

type fakeBroadcaster struct {
	msgType byte
	payload []byte
}

func (f *fakeBroadcaster) Broadcast(msgType byte, payload []byte) {
	f.msgType = msgType
	f.payload = payload
}

func TestClientAnnounceBroadcastsSelfAddress(t *testing.T) {
	b := &fakeBroadcaster{}
	c := &Client{Broadcaster: b, LocalAddress: "192.168.1.10", LocalPort: 9000}

	c.Announce(context.Background())

	if b.msgType != MsgNodeAnnouncement {
		t.Fatalf("msgType = %d, want MsgNodeAnnouncement", b.msgType)
	}

	decoded, err := DecodeMessage(b.payload)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if string(decoded.Payload) != "192.168.1.10:9000" {
		t.Fatalf("payload = %q, want %q", decoded.Payload, "192.168.1.10:9000")
	}
}

func TestServerHandlePeerListRequestRepliesWithKnownPeers(t *testing.T) {
	server := NewServer(0, nil)
	server.recordPeer("10.0.0.1:9000")
	server.recordPeer("10.0.0.2:9000")

	sender := &fakeSender{}
	req := Message{Type: MsgPeerListRequest}

	server.HandlePeerListRequest(sender, MsgPeerListRequest, req.Encode())

	reply, err := DecodeMessage(sender.sent)
	if err != nil {
		t.Fatalf("DecodeMessage(reply): %v", err)
	}
	peers, err := DecodePeerList(reply.Payload)
	if err != nil {
		t.Fatalf("DecodePeerList: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("got %d peers, want 2", len(peers))
	}
}

func TestServerEvictsOldestPeerWhenFull(t *testing.T) {
	server := NewServer(2, nil)
	server.recordPeer("10.0.0.1:9000")
	time.Sleep(time.Millisecond)
	server.recordPeer("10.0.0.2:9000")
	time.Sleep(time.Millisecond)
	server.recordPeer("10.0.0.3:9000")

	known := server.KnownPeers()
	if len(known) != 2 {
		t.Fatalf("got %d known peers, want 2", len(known))
	}

	found := make(map[string]bool)
	for _, p := range known {
		found[p] = true
	}
	if found["10.0.0.1:9000"] {
		t.Fatalf("oldest peer was not evicted")
	}
	if !found["10.0.0.3:9000"] {
		t.Fatalf("newest peer missing from known set")
	}
}

func TestServerHandleNodeAnnouncementConnectsWhenUnknown(t *testing.T) {
	connector := newFakeConnector()
	server := NewServer(0, connector)

	msg := Message{Type: MsgNodeAnnouncement, Address: "10.0.0.9", Port: 9000}
	server.HandleNodeAnnouncement(&fakeSender{}, MsgNodeAnnouncement, msg.Encode())

	deadline := time.After(time.Second)
	for {
		if connector.IsConnected("10.0.0.9:9000") {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected connector to connect to announced peer")
		case <-time.After(time.Millisecond):
		}
	}

	known := server.KnownPeers()
	if len(known) != 1 || known[0] != "10.0.0.9:9000" {
		t.Fatalf("known peers = %v, want [10.0.0.9:9000]", known)
	}
}

func TestDecodePeerListFlexibleAcceptsJSON(t *testing.T) {
	got, err := DecodePeerListFlexible([]byte(`["10.0.0.1:9000","10.0.0.2:9000"]`))
	if err != nil {
		t.Fatalf("DecodePeerListFlexible: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d peers, want 2", len(got))
	}
}

func TestDecodePeerListFlexibleAcceptsCommaSeparated(t *testing.T) {
	got, err := DecodePeerListFlexible([]byte("10.0.0.1:9000, 10.0.0.2:9000"))
	if err != nil {
		t.Fatalf("DecodePeerListFlexible: %v", err)
	}
	if len(got) != 2 || got[0] != "10.0.0.1:9000" || got[1] != "10.0.0.2:9000" {
		t.Fatalf("got %v, want [10.0.0.1:9000 10.0.0.2:9000]", got)
	}
}

func TestDecodePeerListFlexibleAcceptsBinary(t *testing.T) {
	binary := EncodePeerList([]string{"10.0.0.1:9000"})
	got, err := DecodePeerListFlexible(binary)
	if err != nil {
		t.Fatalf("DecodePeerListFlexible: %v", err)
	}
	if len(got) != 1 || got[0] != "10.0.0.1:9000" {
		t.Fatalf("got %v, want [10.0.0.1:9000]", got)
	}
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	m := Message{Type: MsgBootstrapRequest, RequestID: uuid.UUID{1, 2, 3}, Address: "127.0.0.1", Port: 9000, Payload: []byte("hi")}
	got, err := DecodeMessage(m.Encode())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if got.Address != m.Address || got.Port != m.Port || string(got.Payload) != string(m.Payload) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, m)
	}
}
