package dht

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kjaylee/eastsea-node-sub000/nodeid"
)

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	sender, err := nodeid.Random()
	if err != nil {
		t.Fatalf("nodeid.Random: %v", err)
	}

	m := Message{
		Type:      MsgFindNode,
		RequestID: uuid.New(),
		SenderID:  sender,
		Payload:   []byte("target-id-bytes"),
	}

	raw := m.Encode()
	got, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}

	if got.Type != m.Type {
		t.Errorf("Type = %d, want %d", got.Type, m.Type)
	}
	if got.RequestID != m.RequestID {
		t.Errorf("RequestID = %v, want %v", got.RequestID, m.RequestID)
	}
	if !got.SenderID.Equal(m.SenderID) {
		t.Errorf("SenderID mismatch")
	}
	if string(got.Payload) != string(m.Payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, m.Payload)
	}
}

func TestMessageEncodeDecodeEmptyPayload(t *testing.T) {
	m := Message{Type: MsgPing, RequestID: uuid.New()}
	got, err := DecodeMessage(m.Encode())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("Payload = %v, want empty", got.Payload)
	}
}

func TestDecodeMessageRejectsShortBuffer(t *testing.T) {
	if _, err := DecodeMessage(make([]byte, MessageHeaderSize-1)); err != ErrMessageTooShort {
		t.Fatalf("err = %v, want ErrMessageTooShort", err)
	}
}

func TestDecodeMessageRejectsTruncatedPayload(t *testing.T) {
	m := Message{Type: MsgStore, RequestID: uuid.New(), Payload: []byte("hello world")}
	raw := m.Encode()

	if _, err := DecodeMessage(raw[:len(raw)-3]); err != ErrMessageTooShort {
		t.Fatalf("err = %v, want ErrMessageTooShort", err)
	}
}

func TestFindNodeResponseRoundTrip(t *testing.T) {
	id1, _ := nodeid.Random()
	id2, _ := nodeid.Random()

	peers := []PeerRecord{
		{ID: id1, Address: "10.0.0.1", Port: 9000},
		{ID: id2, Address: "192.168.1.50", Port: 9001},
	}

	encoded := EncodeFindNodeResponse(peers)
	decoded, err := DecodeFindNodeResponse(encoded)
	if err != nil {
		t.Fatalf("DecodeFindNodeResponse: %v", err)
	}

	if len(decoded) != len(peers) {
		t.Fatalf("decoded %d peers, want %d", len(decoded), len(peers))
	}
	for i, p := range decoded {
		if !p.ID.Equal(peers[i].ID) || p.Address != peers[i].Address || p.Port != peers[i].Port {
			t.Errorf("peer %d = %+v, want %+v", i, p, peers[i])
		}
	}
}

func TestFindNodeResponseEmpty(t *testing.T) {
	decoded, err := DecodeFindNodeResponse(EncodeFindNodeResponse(nil))
	if err != nil {
		t.Fatalf("DecodeFindNodeResponse: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("decoded %d peers, want 0", len(decoded))
	}
}
