package localdiscovery

import (
	"strings"
	"testing"
)

func TestNewMDNSAnnouncerInstanceFormat(t *testing.T) {
	m, err := NewMDNSAnnouncer("10.0.0.5", 9000)
	if err != nil {
		t.Fatalf("NewMDNSAnnouncer: %v", err)
	}

	if !strings.HasPrefix(m.Instance, "eastsea-node-") {
		t.Fatalf("Instance = %q, want eastsea-node- prefix", m.Instance)
	}
	if len(m.Instance) != len("eastsea-node-")+16 {
		t.Fatalf("Instance = %q, want 16 hex chars after prefix", m.Instance)
	}
}

func TestMDNSAnnouncerLimitedModeIsSafeNoop(t *testing.T) {
	m, err := NewMDNSAnnouncer("10.0.0.5", 9000)
	if err != nil {
		t.Fatalf("NewMDNSAnnouncer: %v", err)
	}
	m.limited = true

	if err := m.Announce(); err != nil {
		t.Fatalf("Announce() in limited mode = %v, want nil", err)
	}
	if err := m.Query(); err != nil {
		t.Fatalf("Query() in limited mode = %v, want nil", err)
	}
}

func TestBuildRecordsContainsPTRSRVTXT(t *testing.T) {
	m, err := NewMDNSAnnouncer("10.0.0.5", 9000)
	if err != nil {
		t.Fatalf("NewMDNSAnnouncer: %v", err)
	}

	msg := m.buildRecords()
	if len(msg.Answer) != 3 {
		t.Fatalf("got %d records, want 3", len(msg.Answer))
	}
}

func TestMDNSAnnouncerLimitedV6FalseBeforeJoinV6(t *testing.T) {
	m, err := NewMDNSAnnouncer("10.0.0.5", 9000)
	if err != nil {
		t.Fatalf("NewMDNSAnnouncer: %v", err)
	}

	if m.LimitedV6() {
		t.Fatalf("LimitedV6() before JoinV6 was ever called should read false (unattempted), got true")
	}

	// writeV6 on a connV6-less announcer must be a safe no-op: Announce
	// and Query must not panic or error just because IPv6 was never
	// joined.
	if err := m.Announce(); err != nil {
		t.Fatalf("Announce() without IPv6 join = %v, want nil", err)
	}
}

func TestParseAnnouncementExtractsSRV(t *testing.T) {
	m, err := NewMDNSAnnouncer("10.0.0.5", 9000)
	if err != nil {
		t.Fatalf("NewMDNSAnnouncer: %v", err)
	}

	packed, err := m.buildRecords().Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	address, port, ok := ParseAnnouncement(packed)
	if !ok {
		t.Fatalf("ParseAnnouncement did not find an SRV record")
	}
	if port != 9000 {
		t.Fatalf("port = %d, want 9000", port)
	}
	if !strings.HasPrefix(address, "10.0.0.5") {
		t.Fatalf("address = %q, want prefix 10.0.0.5", address)
	}
}
