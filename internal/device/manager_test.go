package device

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/config"
	"github.com/nerrad567/buildtrack-sync/internal/protocol"
	"github.com/nerrad567/buildtrack-sync/internal/state"
)

// mockTransport records traffic; publishes fail while disconnected.
type mockTransport struct {
	mu         sync.Mutex
	connected  bool
	subscribed []string
	published  []publishCall
	subErr     error
}

type publishCall struct {
	endpoint string
	payload  string
}

func (m *mockTransport) Subscribe(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	m.subscribed = append(m.subscribed, endpoint)
	return nil
}

func (m *mockTransport) Publish(endpoint string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return errors.New("mock: not connected")
	}
	m.published = append(m.published, publishCall{endpoint: endpoint, payload: string(payload)})
	return nil
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) publishedCalls() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]publishCall, len(m.published))
	copy(out, m.published)
	return out
}

func (m *mockTransport) subscribedEndpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.subscribed))
	copy(out, m.subscribed)
	return out
}

func newTestManager() (*Manager, *mockTransport, *mockTransport) {
	streamT := &mockTransport{connected: true}
	brokerT := &mockTransport{connected: true}
	return NewManager(state.NewTable(), streamT, brokerT), streamT, brokerT
}

// =============================================================================
// Command Tests
// =============================================================================

func TestCommand_OptimisticWrite(t *testing.T) {
	m, _, _ := newTestManager()

	// Seed a speed so we can verify it survives the optimistic write.
	m.OnStatusEvent(protocol.StatusEvent{
		Endpoint: "E1",
		Pins:     []protocol.PinState{{On: false, Speed: 40}},
	})

	if err := m.Command("E1", 1, protocol.StateOn, -1); err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	cs := m.CurrentState("E1", 1)
	if !cs.On {
		t.Error("expected channel on immediately after command")
	}
	if cs.Speed != 40 {
		t.Errorf("speed = %d, want 40 (optimistic write must not touch speed)", cs.Speed)
	}
}

func TestCommand_PayloadShape(t *testing.T) {
	m, streamT, _ := newTestManager()

	if err := m.Command("E1", 2, protocol.StateOn, 60); err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	calls := streamT.publishedCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(calls))
	}
	if calls[0].endpoint != "E1" {
		t.Errorf("endpoint = %q, want E1", calls[0].endpoint)
	}

	payload := calls[0].payload
	for _, want := range []string{
		`"macID":"E1"`,
		`"event":"execute"`,
		`"command":"execute"`,
		`"pin":2`,
		`"state":"on"`,
		`"speed":"60"`,
		`"passcode":"E1"`,
		`"to":"E1"`,
	} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %s: %s", want, payload)
		}
	}

	// A commanded speed shows up in the table immediately too.
	if cs := m.CurrentState("E1", 2); !cs.On || cs.Speed != 60 {
		t.Errorf("state after command = %+v, want {on 60}", cs)
	}
}

func TestCommand_DroppedWhileDisconnected(t *testing.T) {
	m, streamT, _ := newTestManager()
	streamT.mu.Lock()
	streamT.connected = false
	streamT.mu.Unlock()

	// Fire and forget: no error even though the transport is down.
	if err := m.Command("E1", 1, protocol.StateOn, -1); err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	if n := len(streamT.publishedCalls()); n != 0 {
		t.Errorf("published %d commands, want 0 (no queueing)", n)
	}
	// The optimistic write still lands; the local view tracks intent
	// even through an outage.
	if !m.IsOn("E1", 1) {
		t.Error("optimistic write must apply regardless of connectivity")
	}
}

func TestCommand_Validation(t *testing.T) {
	m, _, _ := newTestManager()

	if err := m.Command("E1", 0, protocol.StateOn, -1); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("channel 0 error = %v, want ErrInvalidChannel", err)
	}
	if err := m.Command("E1", 1, "blink", -1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("state blink error = %v, want ErrInvalidState", err)
	}
	if err := m.Command("E1", 1, protocol.StateOpen, -1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cover state on Command error = %v, want ErrInvalidState", err)
	}
}

// =============================================================================
// Cover Tests
// =============================================================================

func TestCoverCommand_OptimisticallyOff(t *testing.T) {
	m, streamT, _ := newTestManager()

	m.OnStatusEvent(protocol.StatusEvent{
		Endpoint: "E1",
		Pins:     []protocol.PinState{{On: true}},
	})

	if err := m.CoverCommand("E1", 1, protocol.StateOpen); err != nil {
		t.Fatalf("CoverCommand() error = %v", err)
	}

	if m.IsOn("E1", 1) {
		t.Error("cover motion must mark the channel off")
	}

	calls := streamT.publishedCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(calls))
	}
	if !strings.Contains(calls[0].payload, `"state":"open"`) {
		t.Errorf("payload missing open state: %s", calls[0].payload)
	}
	if !strings.Contains(calls[0].payload, `"speed":"0"`) {
		t.Errorf("cover payload must carry speed \"0\": %s", calls[0].payload)
	}
}

func TestCoverCommand_Validation(t *testing.T) {
	m, _, _ := newTestManager()

	if err := m.CoverCommand("E1", 1, protocol.StateOn); !errors.Is(err, ErrInvalidState) {
		t.Errorf("power state on CoverCommand error = %v, want ErrInvalidState", err)
	}
}

// =============================================================================
// Toggle Tests
// =============================================================================

func TestToggle(t *testing.T) {
	m, streamT, _ := newTestManager()

	if err := m.Toggle("E1", 1, -1); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	calls := streamT.publishedCalls()
	if !strings.Contains(calls[0].payload, `"state":"on"`) {
		t.Errorf("first toggle should switch on: %s", calls[0].payload)
	}
	if !m.IsOn("E1", 1) {
		t.Error("expected channel on after first toggle")
	}

	if err := m.Toggle("E1", 1, -1); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	calls = streamT.publishedCalls()
	if !strings.Contains(calls[1].payload, `"state":"off"`) {
		t.Errorf("second toggle should switch off: %s", calls[1].payload)
	}
	if m.IsOn("E1", 1) {
		t.Error("expected channel off after second toggle")
	}
}

// =============================================================================
// Routing Tests
// =============================================================================

func TestRouting_TransportIsolation(t *testing.T) {
	m, streamT, brokerT := newTestManager()
	m.SetRoute("E1", Route{Transport: config.TransportStream})
	m.SetRoute("E2", Route{Transport: config.TransportBroker})

	if err := m.Command("E1", 1, protocol.StateOn, -1); err != nil {
		t.Fatalf("Command(E1) error = %v", err)
	}
	if err := m.Command("E2", 1, protocol.StateOn, -1); err != nil {
		t.Fatalf("Command(E2) error = %v", err)
	}

	if calls := streamT.publishedCalls(); len(calls) != 1 || calls[0].endpoint != "E1" {
		t.Errorf("stream saw %v, want exactly E1", calls)
	}
	if calls := brokerT.publishedCalls(); len(calls) != 1 || calls[0].endpoint != "E2" {
		t.Errorf("broker saw %v, want exactly E2", calls)
	}
}

func TestRouting_DefaultsToStream(t *testing.T) {
	m, streamT, brokerT := newTestManager()

	if err := m.Command("unrouted", 1, protocol.StateOff, -1); err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	if len(streamT.publishedCalls()) != 1 {
		t.Error("unrouted endpoint should use the stream")
	}
	if len(brokerT.publishedCalls()) != 0 {
		t.Error("broker must not see unrouted traffic")
	}
}

// =============================================================================
// Interest Registration Tests
// =============================================================================

func TestRegisterInterest_Idempotent(t *testing.T) {
	m, streamT, _ := newTestManager()

	if err := m.RegisterInterest("E1"); err != nil {
		t.Fatalf("RegisterInterest() error = %v", err)
	}
	if err := m.RegisterInterest("E1"); err != nil {
		t.Fatalf("second RegisterInterest() error = %v", err)
	}

	if subs := streamT.subscribedEndpoints(); len(subs) != 1 {
		t.Errorf("transport saw %d subscriptions, want 1", len(subs))
	}
}

func TestRegisterInterest_RoutedToBroker(t *testing.T) {
	m, streamT, brokerT := newTestManager()
	m.SetRoute("E2", Route{Transport: config.TransportBroker})

	if err := m.RegisterInterest("E2"); err != nil {
		t.Fatalf("RegisterInterest() error = %v", err)
	}

	if len(brokerT.subscribedEndpoints()) != 1 {
		t.Error("expected subscription on the broker transport")
	}
	if len(streamT.subscribedEndpoints()) != 0 {
		t.Error("stream must not see broker-routed subscriptions")
	}
}

func TestRegisterInterest_RetriesAfterFailure(t *testing.T) {
	m, streamT, _ := newTestManager()
	streamT.subErr = errors.New("mock: subscribe failed")

	if err := m.RegisterInterest("E1"); err == nil {
		t.Fatal("expected error from failing subscribe")
	}

	// A retry must reach the transport again.
	streamT.subErr = nil
	if err := m.RegisterInterest("E1"); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if subs := streamT.subscribedEndpoints(); len(subs) != 1 {
		t.Errorf("transport saw %d subscriptions after retry, want 1", len(subs))
	}
}

// =============================================================================
// Status Merge Tests
// =============================================================================

func TestOnStatusEvent_MergesReport(t *testing.T) {
	m, _, _ := newTestManager()

	m.OnStatusEvent(protocol.StatusEvent{
		Endpoint: "E1",
		Pins: []protocol.PinState{
			{On: true, Speed: 60},
			{On: false},
			{On: true},
		},
	})

	if cs := m.CurrentState("E1", 1); !cs.On || cs.Speed != 60 {
		t.Errorf("channel 1 = %+v, want {on 60}", cs)
	}
	if m.IsOn("E1", 2) {
		t.Error("channel 2 should be off")
	}
	if !m.IsOn("E1", 3) {
		t.Error("channel 3 should be on")
	}
}

func TestOnStatusEvent_OverridesOptimisticWrite(t *testing.T) {
	m, _, _ := newTestManager()

	if err := m.Command("E1", 1, protocol.StateOn, -1); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if !m.IsOn("E1", 1) {
		t.Fatal("optimistic write missing")
	}

	// The device reports ground truth: still off.
	m.OnStatusEvent(protocol.StatusEvent{
		Endpoint: "E1",
		Pins:     []protocol.PinState{{On: false}},
	})

	if m.IsOn("E1", 1) {
		t.Error("status report must override the optimistic write")
	}
}

// =============================================================================
// Fast Path Tests
// =============================================================================

func TestFastPath_PostsToLocalAddress(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body) //nolint:errcheck
		received <- r
		bodies <- body
	}))
	defer srv.Close()

	m, _, _ := newTestManager()
	m.EnableFastPath(2 * time.Second)
	m.SetRoute("E1", Route{
		Transport:    config.TransportStream,
		LocalAddress: strings.TrimPrefix(srv.URL, "http://"),
	})

	if err := m.Command("E1", 1, protocol.StateOn, 60); err != nil {
		t.Fatalf("Command() error = %v", err)
	}

	select {
	case r := <-received:
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			t.Errorf("request = %s %s, want POST /execute", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != fastPathContentType {
			t.Errorf("Content-Type = %q, want %q", ct, fastPathContentType)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("fast path call never arrived")
	}

	var cmd struct {
		Command  string `json:"command"`
		Passcode string `json:"passcode"`
		Params   []struct {
			Pin   int    `json:"pin"`
			State string `json:"state"`
			Speed string `json:"speed"`
		} `json:"params"`
	}
	if err := json.Unmarshal(<-bodies, &cmd); err != nil {
		t.Fatalf("fast path body: %v", err)
	}
	if cmd.Command != "execute" || cmd.Passcode != "E1" {
		t.Errorf("body = %+v", cmd)
	}
	if len(cmd.Params) != 1 || cmd.Params[0].Pin != 1 || cmd.Params[0].Speed != "60" {
		t.Errorf("params = %+v", cmd.Params)
	}
}

func TestFastPath_FailureDoesNotBlockCommand(t *testing.T) {
	m, streamT, _ := newTestManager()
	m.EnableFastPath(100 * time.Millisecond)
	m.SetRoute("E1", Route{
		Transport:    config.TransportStream,
		LocalAddress: "127.0.0.1:1", // Nothing listens here.
	})

	if err := m.Command("E1", 1, protocol.StateOn, -1); err != nil {
		t.Fatalf("Command() error = %v (fast path failures must be swallowed)", err)
	}
	if len(streamT.publishedCalls()) != 1 {
		t.Error("cloud command must go out regardless of the fast path")
	}
}
