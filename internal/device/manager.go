package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/buildtrack-sync/internal/protocol"
	"github.com/nerrad567/buildtrack-sync/internal/state"
)

// Transport carries commands and subscriptions for a set of endpoints.
// Implemented by the stream and broker transports.
type Transport interface {
	Subscribe(endpoint string) error
	Publish(endpoint string, payload []byte) error
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Manager is the device synchronization core.
//
// Thread Safety: all methods are safe for concurrent use. Status
// events from both transports and optimistic command writes all funnel
// into the shared state table, where last write wins.
type Manager struct {
	table  *state.Table
	stream Transport
	broker Transport

	routes  map[string]Route
	routeMu sync.RWMutex

	// interests tracks endpoints already registered, making
	// RegisterInterest idempotent.
	interests map[string]struct{}
	intMu     sync.Mutex

	// fastPath is nil when the local HTTP path is disabled.
	fastPath *fastPath

	logger   Logger
	loggerMu sync.RWMutex
}

// NewManager creates the synchronization core over two transports.
//
// Wire both transports' status callbacks to OnStatusEvent before
// connecting them.
func NewManager(table *state.Table, stream, broker Transport) *Manager {
	return &Manager{
		table:     table,
		stream:    stream,
		broker:    broker,
		routes:    make(map[string]Route),
		interests: make(map[string]struct{}),
	}
}

// EnableFastPath turns on the direct local HTTP command path with the
// given per-call timeout.
func (m *Manager) EnableFastPath(timeout time.Duration) {
	m.fastPath = newFastPath(timeout)
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// RegisterInterest subscribes to an endpoint's status reports on its
// routed transport. Idempotent: repeat calls for a registered endpoint
// do nothing.
func (m *Manager) RegisterInterest(endpoint string) error {
	m.intMu.Lock()
	if _, ok := m.interests[endpoint]; ok {
		m.intMu.Unlock()
		return nil
	}
	m.interests[endpoint] = struct{}{}
	m.intMu.Unlock()

	if err := m.transportFor(endpoint).Subscribe(endpoint); err != nil {
		// Forget the registration so a retry reaches the transport.
		m.intMu.Lock()
		delete(m.interests, endpoint)
		m.intMu.Unlock()
		return fmt.Errorf("register %s: %w", endpoint, err)
	}

	m.logDebug("registered interest", "endpoint", endpoint)
	return nil
}

// Command drives one channel to a power state.
//
// The command is sent on the endpoint's routed transport and, when a
// LAN address is known, raced over the local fast path. The expected
// state is written to the table immediately; the device's next status
// report overwrites it with ground truth. The only errors returned are
// for invalid input. Delivery is at most once: commands issued during
// an outage are dropped, not queued.
//
// Parameters:
//   - endpoint: controller hardware key
//   - channel: 1-based channel number
//   - stateName: protocol.StateOn or protocol.StateOff
//   - speed: speed value for fan-style channels, negative for none
func (m *Manager) Command(endpoint string, channel int, stateName string, speed int) error {
	if channel < 1 {
		return ErrInvalidChannel
	}
	if stateName != protocol.StateOn && stateName != protocol.StateOff {
		return fmt.Errorf("%w: %q", ErrInvalidState, stateName)
	}

	m.send(endpoint, channel, stateName, speed)

	// Optimistic write: show the expected state until the next status
	// report overwrites it with ground truth. Applied even when the
	// transport is down, so the local view tracks intent; reconnect
	// priming reconciles any drift.
	cs := m.table.Get(endpoint, channel)
	cs.On = stateName == protocol.StateOn
	if speed >= 0 {
		cs.Speed = speed
	}
	m.table.Set(endpoint, channel, cs)

	return nil
}

// CoverCommand drives a cover channel: open, close, or stop.
//
// Covers report no meaningful power state, and the backend's own
// clients mark them off after every motion command; the same is done
// here so toggles behave.
func (m *Manager) CoverCommand(endpoint string, channel int, stateName string) error {
	if channel < 1 {
		return ErrInvalidChannel
	}
	switch stateName {
	case protocol.StateOpen, protocol.StateClose, protocol.StateStop:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidState, stateName)
	}

	m.send(endpoint, channel, stateName, 0)

	cs := m.table.Get(endpoint, channel)
	cs.On = false
	cs.Speed = 0
	m.table.Set(endpoint, channel, cs)

	return nil
}

// Toggle flips a channel's power state based on the table's view.
func (m *Manager) Toggle(endpoint string, channel int, speed int) error {
	if m.table.IsOn(endpoint, channel) {
		return m.Command(endpoint, channel, protocol.StateOff, speed)
	}
	return m.Command(endpoint, channel, protocol.StateOn, speed)
}

// send launches the fast path (when available) and publishes the cloud
// command on the routed transport. Fire and forget: delivery failures
// are logged and dropped, never surfaced to the caller.
func (m *Manager) send(endpoint string, channel int, stateName string, speed int) {
	if m.fastPath != nil {
		if addr := m.localAddress(endpoint); addr != "" {
			go m.fastPath.send(addr, endpoint, channel, stateName, speed, m.getLogger())
		}
	}

	cloudSpeed := speed
	if cloudSpeed < 0 {
		cloudSpeed = 0
	}
	payload, err := protocol.NewExecuteCommand(endpoint, channel, stateName, cloudSpeed).Encode()
	if err != nil {
		m.logError("command encode failed", "endpoint", endpoint, "error", err)
		return
	}

	if err := m.transportFor(endpoint).Publish(endpoint, payload); err != nil {
		m.logWarn("command dropped", "endpoint", endpoint, "channel", channel, "error", err)
		return
	}

	m.logDebug("command sent", "endpoint", endpoint, "channel", channel, "state", stateName)
}

// OnStatusEvent folds a status report into the table. This is the only
// writer besides the optimistic command path; wire it as both
// transports' status callback.
func (m *Manager) OnStatusEvent(ev protocol.StatusEvent) {
	for i, pin := range ev.Pins {
		m.table.Set(ev.Endpoint, i+1, state.ChannelState{
			On:    pin.On,
			Speed: pin.Speed,
		})
	}
	m.logDebug("status merged", "endpoint", ev.Endpoint, "channels", len(ev.Pins))
}

// CurrentState returns the table's view of one channel.
func (m *Manager) CurrentState(endpoint string, channel int) state.ChannelState {
	return m.table.Get(endpoint, channel)
}

// IsOn reports the table's power view of one channel.
func (m *Manager) IsOn(endpoint string, channel int) bool {
	return m.table.IsOn(endpoint, channel)
}

func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

func (m *Manager) logDebug(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (m *Manager) logWarn(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (m *Manager) logError(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
