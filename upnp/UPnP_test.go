package upnp

import (
	"net"
	"testing"
)

// TestDiscoverAgainstEmptyNetworkFailsCleanly exercises the real Discover
// path without a network present (the CI sandbox has none): Discover
// must return a non-nil error rather than hang past its own deadline or
// panic on a nil gateway.
func TestDiscoverAgainstEmptyNetworkFailsCleanly(t *testing.T) {
	gateway, err := Discover(net.IPv4zero)
	if err == nil {
		t.Fatalf("expected Discover to fail with no reachable gateway, got gateway=%v", gateway)
	}
	if gateway != nil {
		t.Fatalf("expected a nil Gateway alongside the error, got %v", gateway)
	}
}

func TestMappingKeyIsCaseInsensitiveAndProtocolSensitive(t *testing.T) {
	if mappingKey("tcp", 8080) != mappingKey("TCP", 8080) {
		t.Fatalf("mappingKey should be case-insensitive on protocol")
	}
	if mappingKey("tcp", 8080) == mappingKey("udp", 8080) {
		t.Fatalf("mappingKey collided across protocols")
	}
	if mappingKey("tcp", 8080) == mappingKey("tcp", 8081) {
		t.Fatalf("mappingKey collided across ports")
	}
}

// TestIsMappedReflectsRecordedMappingsOnly checks that IsMapped answers
// from local bookkeeping alone, both before and after recordMapping /
// forgetMapping run, without making any network call.
func TestIsMappedReflectsRecordedMappingsOnly(t *testing.T) {
	g := &gatewayClient{}

	if g.IsMapped("tcp", 9000) {
		t.Fatalf("fresh gatewayClient should report no mappings")
	}

	g.recordMapping("tcp", 9000)
	g.recordMapping("udp", 9001)

	if !g.IsMapped("tcp", 9000) {
		t.Fatalf("expected tcp/9000 to be mapped after recordMapping")
	}
	if !g.IsMapped("udp", 9001) {
		t.Fatalf("expected udp/9001 to be mapped after recordMapping")
	}
	if g.IsMapped("tcp", 9999) {
		t.Fatalf("did not expect tcp/9999 to be mapped")
	}

	g.forgetMapping("tcp", 9000)
	if g.IsMapped("tcp", 9000) {
		t.Fatalf("expected tcp/9000 to be forgotten after forgetMapping")
	}
	if !g.IsMapped("udp", 9001) {
		t.Fatalf("forgetting tcp/9000 should not affect udp/9001")
	}
}

// TestRemoveAllPortMappingsKeepsBookkeepingOnSOAPFailure confirms
// RemoveAllPortMappings surfaces a SOAP failure (an empty controlURL
// can never be dialed) without pretending the mapping was withdrawn:
// forgetMapping only runs once DeletePortMapping's SOAP call actually
// succeeds, so a failed sweep must leave local state untouched.
func TestRemoveAllPortMappingsKeepsBookkeepingOnSOAPFailure(t *testing.T) {
	g := &gatewayClient{mappings: map[string]bool{
		mappingKey("tcp", 9000): true,
		mappingKey("udp", 9001): true,
	}}

	if err := g.RemoveAllPortMappings(); err == nil {
		t.Fatalf("expected a SOAP error from the empty controlURL, got nil")
	}

	if !g.IsMapped("tcp", 9000) || !g.IsMapped("udp", 9001) {
		t.Fatalf("expected mappings to remain recorded after a failed SOAP sweep")
	}
}

// TestNATIsGatewayAlias confirms the retained NAT name type-checks as
// the same interface satisfied by gatewayClient, for callers still
// importing the teacher's original interface name.
func TestNATIsGatewayAlias(t *testing.T) {
	var _ NAT = (*gatewayClient)(nil)
	var _ Gateway = (*gatewayClient)(nil)
}
