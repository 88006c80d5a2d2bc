package broker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/buildtrack-sync/internal/protocol"
)

// ErrNotConnected is returned when sending while the broker session is
// down. Commands are never queued.
var ErrNotConnected = errors.New("broker: not connected")

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client is the subset of the MQTT client the transport uses.
// Narrowed for testability.
type Client interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	SetOnConnect(callback func())
}

// Stats holds operational statistics.
type Stats struct {
	StatusRx      uint64
	CommandsTx    uint64
	EventsDropped uint64 // Sends refused while disconnected
	ErrorsTotal   uint64
	Connected     bool
}

// Transport routes device traffic over the MQTT broker.
//
// Thread Safety: all methods are safe for concurrent use. Status
// callbacks run on the MQTT client's handler goroutines.
type Transport struct {
	client Client
	qos    byte

	// endpoints remembers every endpoint ever subscribed, for replay
	// after reconnect.
	endpoints map[string]struct{}
	epMu      sync.Mutex

	// Status event callback
	onStatus   func(protocol.StatusEvent)
	callbackMu sync.RWMutex

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	statusRx      atomic.Uint64
	commandsTx    atomic.Uint64
	eventsDropped atomic.Uint64
	errorsTotal   atomic.Uint64
}

// New creates a broker transport over an MQTT client.
//
// The transport hooks the client's connect callback to replay endpoint
// subscriptions; callers needing their own connect hook should layer it
// before calling New.
func New(client Client, qos byte) *Transport {
	t := &Transport{
		client:    client,
		qos:       qos,
		endpoints: make(map[string]struct{}),
	}
	client.SetOnConnect(t.replaySubscriptions)
	return t
}

// Subscribe registers interest in an endpoint's status reports and
// publishes a deviceStatus query to prime the state table.
//
// The endpoint is remembered even when the broker is unreachable; the
// subscription runs when the connection is next established.
func (t *Transport) Subscribe(endpoint string) error {
	t.epMu.Lock()
	t.endpoints[endpoint] = struct{}{}
	t.epMu.Unlock()

	if !t.client.IsConnected() {
		t.logDebug("subscription queued until broker connect", "endpoint", endpoint)
		return nil
	}
	return t.subscribeEndpoint(endpoint)
}

// subscribeEndpoint performs the status subscription and priming query.
func (t *Transport) subscribeEndpoint(endpoint string) error {
	if err := t.client.Subscribe(statusTopic(endpoint), t.qos, t.handleMessage); err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("subscribe %s: %w", endpoint, err)
	}

	query, err := protocol.NewDeviceStatusQuery(endpoint).Encode()
	if err != nil {
		t.errorsTotal.Add(1)
		return fmt.Errorf("encode status query for %s: %w", endpoint, err)
	}
	if err := t.client.Publish(executeTopic(endpoint), query, t.qos, false); err != nil {
		// Subscription is in place; the next reconnect replays the
		// query, and any state change pushes a report anyway.
		t.errorsTotal.Add(1)
		t.logWarn("status priming query failed", "endpoint", endpoint, "error", err)
	}

	t.logDebug("subscribed", "endpoint", endpoint)
	return nil
}

// replaySubscriptions re-subscribes every remembered endpoint. Runs on
// each broker connect, including the first.
func (t *Transport) replaySubscriptions() {
	t.epMu.Lock()
	endpoints := make([]string, 0, len(t.endpoints))
	for ep := range t.endpoints {
		endpoints = append(endpoints, ep)
	}
	t.epMu.Unlock()

	if len(endpoints) == 0 {
		return
	}
	t.logInfo("broker connected, replaying subscriptions", "endpoints", len(endpoints))

	for _, ep := range endpoints {
		if err := t.subscribeEndpoint(ep); err != nil {
			t.logWarn("subscription replay failed", "endpoint", ep, "error", err)
		}
	}
}

// Publish sends a command payload to an endpoint's execute topic.
//
// Sends while disconnected fail fast with ErrNotConnected and are never
// queued; convergence comes from the reconnect replay and the device's
// next status report.
func (t *Transport) Publish(endpoint string, payload []byte) error {
	if !t.client.IsConnected() {
		t.eventsDropped.Add(1)
		return fmt.Errorf("%w: dropping send to %s", ErrNotConnected, endpoint)
	}

	if err := t.client.Publish(executeTopic(endpoint), payload, t.qos, false); err != nil {
		t.eventsDropped.Add(1)
		t.errorsTotal.Add(1)
		return fmt.Errorf("publish to %s: %w", endpoint, err)
	}

	t.commandsTx.Add(1)
	return nil
}

// handleMessage decodes an inbound status payload and forwards it.
func (t *Transport) handleMessage(topic string, payload []byte) error {
	ev, err := protocol.ParseStatus(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrNotStatus) {
			return nil // Connectivity replies and acks share the topic.
		}
		t.errorsTotal.Add(1)
		return fmt.Errorf("status on %s: %w", topic, err)
	}

	t.statusRx.Add(1)

	t.callbackMu.RLock()
	callback := t.onStatus
	t.callbackMu.RUnlock()
	if callback != nil {
		callback(ev)
	}
	return nil
}

// SetOnStatus sets the callback for decoded status events.
// Invoked on the MQTT handler goroutines; it should not block.
func (t *Transport) SetOnStatus(callback func(protocol.StatusEvent)) {
	t.callbackMu.Lock()
	t.onStatus = callback
	t.callbackMu.Unlock()
}

// SetLogger sets the logger for this transport.
func (t *Transport) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

// IsConnected reports whether the broker session is up.
func (t *Transport) IsConnected() bool {
	return t.client.IsConnected()
}

// Stats returns current operational statistics.
func (t *Transport) Stats() Stats {
	return Stats{
		StatusRx:      t.statusRx.Load(),
		CommandsTx:    t.commandsTx.Load(),
		EventsDropped: t.eventsDropped.Load(),
		ErrorsTotal:   t.errorsTotal.Load(),
		Connected:     t.IsConnected(),
	}
}

func (t *Transport) logDebug(msg string, keysAndValues ...any) {
	if logger := t.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (t *Transport) logInfo(msg string, keysAndValues ...any) {
	if logger := t.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (t *Transport) logWarn(msg string, keysAndValues ...any) {
	if logger := t.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (t *Transport) getLogger() Logger {
	t.loggerMu.RLock()
	defer t.loggerMu.RUnlock()
	return t.logger
}
