package state

import (
	"sync"
	"testing"
)

// =============================================================================
// Default State Tests
// =============================================================================

func TestGetUnknownEndpoint(t *testing.T) {
	table := NewTable()

	got := table.Get("AA:BB:CC", 1)
	want := ChannelState{On: false, Speed: 0}

	if got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestGetUnknownChannel(t *testing.T) {
	table := NewTable()
	table.Set("AA:BB:CC", 1, ChannelState{On: true, Speed: 40})

	got := table.Get("AA:BB:CC", 2)
	if got != (ChannelState{}) {
		t.Errorf("Get() for unseen channel = %+v, want zero state", got)
	}
}

func TestIsOnUnknown(t *testing.T) {
	table := NewTable()

	if table.IsOn("nope", 1) {
		t.Error("IsOn() = true for unknown endpoint, want false")
	}
}

// =============================================================================
// Set/Get Tests
// =============================================================================

func TestSetGet(t *testing.T) {
	table := NewTable()

	table.Set("E1", 1, ChannelState{On: true, Speed: 60})
	table.Set("E1", 2, ChannelState{On: false, Speed: 0})
	table.Set("E2", 1, ChannelState{On: true, Speed: 0})

	tests := []struct {
		endpoint string
		channel  int
		want     ChannelState
	}{
		{"E1", 1, ChannelState{On: true, Speed: 60}},
		{"E1", 2, ChannelState{}},
		{"E2", 1, ChannelState{On: true}},
	}

	for _, tt := range tests {
		if got := table.Get(tt.endpoint, tt.channel); got != tt.want {
			t.Errorf("Get(%s, %d) = %+v, want %+v", tt.endpoint, tt.channel, got, tt.want)
		}
	}
}

func TestSetOverwrite(t *testing.T) {
	table := NewTable()

	table.Set("E1", 1, ChannelState{On: true, Speed: 100})
	table.Set("E1", 1, ChannelState{On: false, Speed: 0})

	if got := table.Get("E1", 1); got != (ChannelState{}) {
		t.Errorf("Get() after overwrite = %+v, want zero state", got)
	}
}

func TestIsOn(t *testing.T) {
	table := NewTable()
	table.Set("E1", 1, ChannelState{On: true, Speed: 40})

	if !table.IsOn("E1", 1) {
		t.Error("IsOn() = false, want true")
	}
	if got := table.Get("E1", 1).Speed; got != 40 {
		t.Errorf("Speed = %d, want 40", got)
	}
}

// =============================================================================
// Snapshot Tests
// =============================================================================

func TestEndpoints(t *testing.T) {
	table := NewTable()
	table.Set("E1", 1, ChannelState{})
	table.Set("E1", 2, ChannelState{On: true})
	table.Set("E2", 1, ChannelState{})

	keys := table.Endpoints()
	if len(keys) != 2 {
		t.Fatalf("Endpoints() returned %d keys, want 2", len(keys))
	}

	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen["E1"] || !seen["E2"] {
		t.Errorf("Endpoints() = %v, want E1 and E2", keys)
	}

	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestConcurrentAccess(t *testing.T) {
	table := NewTable()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for ch := 1; ch <= 100; ch++ {
				table.Set("E1", ch, ChannelState{On: n%2 == 0, Speed: n})
			}
		}(i)
		go func() {
			defer wg.Done()
			for ch := 1; ch <= 100; ch++ {
				table.Get("E1", ch)
				table.IsOn("E1", ch)
			}
		}()
	}
	wg.Wait()

	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}
