/*
File Name:  sets.go
Author:     Eastsea Contributors

The three disjoint address sets (discovered / connecting / connected)
that back the auto-discovery state machine. Grounded on the teacher's
Blacklist.go: a single map guarded by a single mutex, extended here to
three maps sharing one mutex so that "add if not present" is one
critical section across all of them, per spec's disjointness invariant —
an address observed from two discovery sources simultaneously must end
up in exactly one set, never two.
*/

package autodiscovery

import "sync"

// AddressSets tracks the auto-discovery state-machine membership of every
// address this node has observed.
type AddressSets struct {
	mu         sync.Mutex
	discovered map[string]struct{}
	connecting map[string]struct{}
	connected  map[string]struct{}
}

// NewAddressSets returns an empty set of all three state buckets.
func NewAddressSets() *AddressSets {
	return &AddressSets{
		discovered: make(map[string]struct{}),
		connecting: make(map[string]struct{}),
		connected:  make(map[string]struct{}),
	}
}

// AddDiscovered adds addr to the discovered set if and only if it is not
// already present in any of the three sets. Returns true if it was added.
func (s *AddressSets) AddDiscovered(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inAnySetLocked(addr) {
		return false
	}
	s.discovered[addr] = struct{}{}
	return true
}

func (s *AddressSets) inAnySetLocked(addr string) bool {
	if _, ok := s.discovered[addr]; ok {
		return true
	}
	if _, ok := s.connecting[addr]; ok {
		return true
	}
	if _, ok := s.connected[addr]; ok {
		return true
	}
	return false
}

// PromoteToConnecting moves addr from discovered to connecting. Returns
// false if addr was not in discovered.
func (s *AddressSets) PromoteToConnecting(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discovered[addr]; !ok {
		return false
	}
	delete(s.discovered, addr)
	s.connecting[addr] = struct{}{}
	return true
}

// PromoteToConnected moves addr from connecting to connected. Returns
// false if addr was not in connecting.
func (s *AddressSets) PromoteToConnected(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.connecting[addr]; !ok {
		return false
	}
	delete(s.connecting, addr)
	s.connected[addr] = struct{}{}
	return true
}

// FailConnecting removes addr from connecting (connect_fail -> ∅).
func (s *AddressSets) FailConnecting(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connecting, addr)
}

// RemoveConnected removes addr from connected (liveness_lost -> ∅).
func (s *AddressSets) RemoveConnected(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connected, addr)
}

// Discovered returns a snapshot of the discovered set.
func (s *AddressSets) Discovered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.discovered)
}

// Connecting returns a snapshot of the connecting set.
func (s *AddressSets) Connecting() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.connecting)
}

// Connected returns a snapshot of the connected set.
func (s *AddressSets) Connected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return keys(s.connected)
}

// ConnectedCount reports the current size of the connected set.
func (s *AddressSets) ConnectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connected)
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
