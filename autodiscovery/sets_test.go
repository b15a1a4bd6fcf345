package autodiscovery

import (
	"sync"
	"testing"
)

func TestAddDiscoveredRejectsDuplicateFromAnySet(t *testing.T) {
	s := NewAddressSets()

	if !s.AddDiscovered("10.0.0.1:9000") {
		t.Fatalf("first AddDiscovered should succeed")
	}
	if s.AddDiscovered("10.0.0.1:9000") {
		t.Fatalf("duplicate AddDiscovered into discovered should fail")
	}

	if !s.PromoteToConnecting("10.0.0.1:9000") {
		t.Fatalf("PromoteToConnecting should succeed")
	}
	if s.AddDiscovered("10.0.0.1:9000") {
		t.Fatalf("AddDiscovered while in connecting should fail")
	}

	if !s.PromoteToConnected("10.0.0.1:9000") {
		t.Fatalf("PromoteToConnected should succeed")
	}
	if s.AddDiscovered("10.0.0.1:9000") {
		t.Fatalf("AddDiscovered while in connected should fail")
	}
}

func TestConcurrentAddDiscoveredIsDisjoint(t *testing.T) {
	s := NewAddressSets()
	const addr = "10.0.0.2:9000"

	var wg sync.WaitGroup
	successes := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			successes[i] = s.AddDiscovered(addr)
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range successes {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("addr was added %d times concurrently, want exactly 1", count)
	}
}

func TestPromoteToConnectingRequiresDiscovered(t *testing.T) {
	s := NewAddressSets()
	if s.PromoteToConnecting("10.0.0.3:9000") {
		t.Fatalf("PromoteToConnecting should fail for an address never discovered")
	}
}

func TestFailConnectingReturnsToEmpty(t *testing.T) {
	s := NewAddressSets()
	s.AddDiscovered("10.0.0.4:9000")
	s.PromoteToConnecting("10.0.0.4:9000")

	s.FailConnecting("10.0.0.4:9000")

	if len(s.Connecting()) != 0 {
		t.Fatalf("connecting set should be empty after FailConnecting")
	}
	if !s.AddDiscovered("10.0.0.4:9000") {
		t.Fatalf("address should be addable again after connect_fail -> ∅")
	}
}

func TestRemoveConnectedReturnsToEmpty(t *testing.T) {
	s := NewAddressSets()
	s.AddDiscovered("10.0.0.5:9000")
	s.PromoteToConnecting("10.0.0.5:9000")
	s.PromoteToConnected("10.0.0.5:9000")

	s.RemoveConnected("10.0.0.5:9000")

	if s.ConnectedCount() != 0 {
		t.Fatalf("connected count should be 0 after RemoveConnected")
	}
	if !s.AddDiscovered("10.0.0.5:9000") {
		t.Fatalf("address should be addable again after liveness_lost -> ∅")
	}
}
