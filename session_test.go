package eastsea

import (
	"net"
	"testing"
	"time"

	"github.com/kjaylee/eastsea-node-sub000/protocol"
)

func TestSessionSendReceiveRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientSession := NewSession(client)
	serverSession := NewSession(server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		msgType, payload, err := serverSession.Receive()
		if err != nil {
			t.Errorf("Receive: %v", err)
			return
		}
		if msgType != 42 || string(payload) != "hello" {
			t.Errorf("got (%d, %q), want (42, \"hello\")", msgType, payload)
		}
	}()

	if err := clientSession.Send(42, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done
}

func TestSessionPingUpdatesLastPingAndReceivedAsFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientSession := NewSession(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		msgType, payload, err := NewSession(server).Receive()
		if err != nil {
			t.Errorf("Receive: %v", err)
			return
		}
		if msgType != protocol.MsgPing || string(payload) != "ping" {
			t.Errorf("got (%d, %q), want (MsgPing, \"ping\")", msgType, payload)
		}
	}()

	before := time.Now()
	if err := clientSession.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	<-done

	if !clientSession.IsAlive() {
		t.Fatalf("session should be alive right after Ping")
	}
	clientSession.mu.Lock()
	lastPing := clientSession.lastPing
	clientSession.mu.Unlock()
	if lastPing.Before(before) {
		t.Fatalf("lastPing was not updated")
	}
}

func TestSessionTracksPacketsSentAndReceived(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientSession := NewSession(client)
	serverSession := NewSession(server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		serverSession.Receive()
	}()
	if err := clientSession.Send(42, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done

	if got := clientSession.PacketsSent(); got != 1 {
		t.Fatalf("PacketsSent() = %d, want 1", got)
	}
	if got := serverSession.PacketsReceived(); got != 1 {
		t.Fatalf("PacketsReceived() = %d, want 1", got)
	}
	if got := clientSession.PacketsReceived(); got != 0 {
		t.Fatalf("clientSession.PacketsReceived() = %d, want 0", got)
	}
}

func TestSessionRTTMeasuredBetweenPingAndMarkPong(t *testing.T) {
	s := NewSession(pipeConnPair())

	if _, ok := s.RTT(); ok {
		t.Fatalf("RTT should be unknown before any Ping/MarkPong")
	}

	s.mu.Lock()
	s.pingSentAt = time.Now().Add(-10 * time.Millisecond)
	s.mu.Unlock()

	s.MarkPong()

	rtt, ok := s.RTT()
	if !ok {
		t.Fatalf("RTT should be known after MarkPong follows a Ping")
	}
	if rtt <= 0 {
		t.Fatalf("RTT = %v, want > 0", rtt)
	}
}

func TestFeaturesPayloadRoundTrips(t *testing.T) {
	want := FeatureIPv4Listen | FeatureFirewalled
	payload := featuresPayload(want)

	got, ok := parseFeatures(payload)
	if !ok {
		t.Fatalf("parseFeatures failed to parse a valid payload")
	}
	if got != want {
		t.Fatalf("parseFeatures() = %#x, want %#x", got, want)
	}

	if _, ok := parseFeatures(nil); ok {
		t.Fatalf("parseFeatures should reject an empty payload")
	}
	if _, ok := parseFeatures([]byte{1, 2}); ok {
		t.Fatalf("parseFeatures should reject a multi-byte payload")
	}
}

func TestSessionRemoteFeaturesRecordedBySetRemoteFeatures(t *testing.T) {
	s := NewSession(pipeConnPair())

	if _, ok := s.RemoteFeatures(); ok {
		t.Fatalf("RemoteFeatures should be unset before setRemoteFeatures runs")
	}

	s.setRemoteFeatures(FeatureIPv6Listen)

	got, ok := s.RemoteFeatures()
	if !ok || got != FeatureIPv6Listen {
		t.Fatalf("RemoteFeatures() = (%#x, %v), want (%#x, true)", got, ok, FeatureIPv6Listen)
	}
}

// pipeConnPair returns one end of an in-memory connection pair, closing
// the other end immediately since these tests never perform I/O on it.
func pipeConnPair() net.Conn {
	client, server := net.Pipe()
	server.Close()
	return client
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	s := NewSession(client)
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
	if s.IsAlive() {
		t.Fatalf("session should not be alive after Close")
	}
}
