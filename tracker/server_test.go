package tracker

import (
	"testing"
	"time"

	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

func startTestServer(t *testing.T, maxPeers int, timeout time.Duration) (*Server, func()) {
	t.Helper()
	s := NewServer(maxPeers, timeout)

	go func() {
		if err := s.Serve("127.0.0.1:0"); err != nil {
			t.Logf("Serve: %v", err)
		}
	}()

	s.Addr() // block until bound
	return s, func() { s.Stop() }
}

func TestServerAnnounceThenGetPeers(t *testing.T) {
	s, stop := startTestServer(t, 0, 0)
	defer stop()

	id, _ := nodeid.Random()
	client := &Client{Address: s.Addr().String(), NodeID: id, Port: 9001}

	if err := client.Announce(); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	peers, err := client.GetPeers()
	if err != nil {
		t.Fatalf("GetPeers: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("got %d peers, want 1", len(peers))
	}
	if peers[0].NodeID != id {
		t.Fatalf("peer NodeID = %x, want %x", peers[0].NodeID, id)
	}
	if peers[0].Port != 9001 {
		t.Fatalf("peer Port = %d, want 9001", peers[0].Port)
	}
	if !peers[0].IP.IsLoopback() {
		t.Fatalf("peer IP = %v, want loopback", peers[0].IP)
	}
}

func TestServerHeartbeatRefreshesWithoutDuplicating(t *testing.T) {
	s, stop := startTestServer(t, 0, 0)
	defer stop()

	id, _ := nodeid.Random()
	client := &Client{Address: s.Addr().String(), NodeID: id, Port: 9002}

	if err := client.Announce(); err != nil {
		t.Fatalf("Announce: %v", err)
	}
	first, _ := client.GetPeers()
	firstSeen := first[0].LastSeen

	// last_seen travels as whole Unix seconds, so wait past a second
	// boundary before refreshing.
	time.Sleep(1100 * time.Millisecond)

	if err := client.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	second, err := client.GetPeers()
	if err != nil {
		t.Fatalf("GetPeers: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("got %d peers after heartbeat, want 1", len(second))
	}
	if !second[0].LastSeen.After(firstSeen) {
		t.Fatalf("LastSeen did not advance: first=%v second=%v", firstSeen, second[0].LastSeen)
	}
}

func TestServerExpiresStalePeers(t *testing.T) {
	s, stop := startTestServer(t, 0, 50*time.Millisecond)
	defer stop()

	id, _ := nodeid.Random()
	client := &Client{Address: s.Addr().String(), NodeID: id, Port: 9003}

	if err := client.Announce(); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	peers, err := client.GetPeers()
	if err != nil {
		t.Fatalf("GetPeers: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("got %d peers, want 0 (expired)", len(peers))
	}
}

func TestServerEvictsOldestWhenFull(t *testing.T) {
	s, stop := startTestServer(t, 2, 0)
	defer stop()

	idA, _ := nodeid.Random()
	idB, _ := nodeid.Random()
	idC, _ := nodeid.Random()

	clientA := &Client{Address: s.Addr().String(), NodeID: idA, Port: 1}
	clientB := &Client{Address: s.Addr().String(), NodeID: idB, Port: 2}
	clientC := &Client{Address: s.Addr().String(), NodeID: idC, Port: 3}

	if err := clientA.Announce(); err != nil {
		t.Fatalf("announce A: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := clientB.Announce(); err != nil {
		t.Fatalf("announce B: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := clientC.Announce(); err != nil {
		t.Fatalf("announce C: %v", err)
	}

	peers, err := clientC.GetPeers()
	if err != nil {
		t.Fatalf("GetPeers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("got %d peers, want 2 (capped)", len(peers))
	}
	for _, p := range peers {
		if p.NodeID == idA {
			t.Fatalf("oldest peer A was not evicted")
		}
	}
}
