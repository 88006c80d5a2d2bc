package state

import "sync"

// ChannelState is the last known state of a single channel.
//
// Speed uses whatever scale the controller reports (0-100 for fans,
// transport-defined otherwise). A zero value means off with no speed,
// which doubles as the "unknown" state for channels never seen.
type ChannelState struct {
	On    bool
	Speed int
}

// Table is the concurrency-safe mirror of remote channel state.
//
// Keys are the endpoint hardware address and the 1-based channel number.
// The table is the only shared mutable resource in the sync core; both
// transports and the command path write through it concurrently.
type Table struct {
	mu        sync.RWMutex
	endpoints map[string]map[int]ChannelState
}

// NewTable creates an empty state table.
func NewTable() *Table {
	return &Table{
		endpoints: make(map[string]map[int]ChannelState),
	}
}

// Get returns the current state for (endpoint, channel).
//
// It never blocks on anything but the table lock and never fails: an
// unknown endpoint or channel reads as the zero state {off, 0}.
func (t *Table) Get(endpoint string, channel int) ChannelState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	channels, ok := t.endpoints[endpoint]
	if !ok {
		return ChannelState{}
	}
	return channels[channel]
}

// Set overwrites the state for (endpoint, channel), creating the
// per-endpoint entry if absent. Last write wins; status updates and
// optimistic command writes race here deliberately (see device.Manager).
func (t *Table) Set(endpoint string, channel int, cs ChannelState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	channels, ok := t.endpoints[endpoint]
	if !ok {
		channels = make(map[int]ChannelState)
		t.endpoints[endpoint] = channels
	}
	channels[channel] = cs
}

// IsOn reports whether (endpoint, channel) is currently on.
// Unknown channels read as off.
func (t *Table) IsOn(endpoint string, channel int) bool {
	return t.Get(endpoint, channel).On
}

// Endpoints returns a snapshot of all endpoint keys present in the table.
// Used by the stream transport to re-subscribe after a reconnect.
func (t *Table) Endpoints() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.endpoints))
	for k := range t.endpoints {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of endpoints with at least one known channel.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.endpoints)
}
