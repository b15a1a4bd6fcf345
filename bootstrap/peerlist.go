/*
File Name:  peerlist.go
Author:     Eastsea Contributors

DecodePeerListFlexible implements the peer_list_response handler contract:
accept a JSON array of "host:port" strings, a comma-separated "host:port"
list, or (falling back to what this module's own Server actually emits)
the binary {count,[addr_len,addr,port]*} shape from EncodePeerList.
*/

package bootstrap

import (
	"encoding/json"
	"strings"
)

// DecodePeerListFlexible parses a peer_list_response payload in any of the
// three accepted shapes, trying JSON first, then comma-separated text,
// then the binary encoding.
func DecodePeerListFlexible(payload []byte) ([]string, error) {
	var asJSON []string
	if err := json.Unmarshal(payload, &asJSON); err == nil {
		return asJSON, nil
	}

	trimmed := strings.TrimSpace(string(payload))
	if trimmed != "" && isPrintableCommaList(trimmed) {
		parts := strings.Split(trimmed, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result, nil
	}

	return DecodePeerList(payload)
}

// isPrintableCommaList is a cheap heuristic distinguishing textual
// comma-separated payloads from binary-encoded ones: every byte must be a
// printable ASCII character.
func isPrintableCommaList(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}
