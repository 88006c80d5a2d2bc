package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/config"
	"github.com/nerrad567/buildtrack-sync/internal/protocol"
)

// Default timeouts for stream communication.
const (
	// defaultDialTimeout is the maximum time for the WebSocket handshake.
	defaultDialTimeout = 10 * time.Second

	// defaultWriteTimeout bounds individual frame writes.
	defaultWriteTimeout = 5 * time.Second
)

// statusEventName is the only inbound event this transport acts on.
// Everything else (connectivity acks, group notices) is dropped.
const statusEventName = "status"

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// wsConn is the subset of *websocket.Conn the client uses.
// Narrowed for testability.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// dialFunc establishes a WebSocket connection. Replaceable in tests.
type dialFunc func(ctx context.Context) (wsConn, error)

// Stats holds operational statistics.
type Stats struct {
	EventsTx        uint64
	EventsRx        uint64
	EventsDropped   uint64 // Sends refused while disconnected
	ErrorsTotal     uint64
	ReconnectsTotal uint64 // Sessions established after the first
	LastActivity    time.Time
	Connected       bool
}

// Client maintains the socket.io session with the backend.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Status callbacks are invoked from the receive goroutine.
//
// Auto-Reconnection:
//   - Run re-dials on connection loss with exponential backoff starting
//     at the configured initial delay, capped at the configured maximum.
//   - Backoff resets after each established session.
type Client struct {
	cfg    config.StreamConfig
	userID string
	dial   dialFunc

	// Connection state. connected means the socket.io namespace is
	// ready (connect frame seen), not merely that the socket is open.
	conn      wsConn
	connected bool
	connMu    sync.RWMutex

	// writeMu serializes data frame writes; gorilla allows one writer.
	writeMu sync.Mutex

	// subscribed holds endpoints with a completed handshake this
	// session; pending holds endpoints waiting for a session. Both are
	// replayed when a session is established.
	subscribed map[string]struct{}
	pending    map[string]struct{}
	subMu      sync.Mutex

	// Status event callback
	onStatus   func(protocol.StatusEvent)
	callbackMu sync.RWMutex

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	eventsTx        atomic.Uint64
	eventsRx        atomic.Uint64
	eventsDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
	everConnected   atomic.Bool
}

// New creates a stream client bound to one account session.
// Call Run to establish and maintain the connection.
func New(cfg config.StreamConfig, userID string) *Client {
	c := &Client{
		cfg:        cfg,
		userID:     userID,
		subscribed: make(map[string]struct{}),
		pending:    make(map[string]struct{}),
	}
	c.dial = c.defaultDial
	return c
}

// defaultDial opens the WebSocket with the configured Origin header.
func (c *Client) defaultDial(ctx context.Context) (wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultDialTimeout}

	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %w (HTTP %d)", ErrConnectionFailed, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return conn, nil
}

// Run dials the stream endpoint and services the session until ctx is
// cancelled, reconnecting with exponential backoff on failure.
//
// Returns:
//   - error: ctx.Err() once the context is cancelled
func (c *Client) Run(ctx context.Context) error {
	initial := time.Duration(c.cfg.Reconnect.InitialDelay) * time.Second
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := time.Duration(c.cfg.Reconnect.MaxDelay) * time.Second
	if maxDelay < initial {
		maxDelay = initial
	}

	backoff := initial
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.errorsTotal.Add(1)
			c.logWarn("stream dial failed", "error", err, "backoff", backoff.String())
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, maxDelay)
			continue
		}

		if c.session(ctx, conn) {
			// Session reached the connected state; start the backoff
			// ladder over for the next outage.
			backoff = initial
		} else {
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, maxDelay)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logInfo("stream session ended, reconnecting")
	}
}

// session services one WebSocket connection until it fails or ctx is
// cancelled. Returns true if the socket.io connect handshake completed.
func (c *Client) session(ctx context.Context, conn wsConn) bool {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.connected = false
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	readWindow := time.Duration(c.cfg.PingInterval+c.cfg.PongTimeout) * time.Second
	conn.SetPongHandler(func(string) error {
		c.lastActivity.Store(time.Now().Unix())
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// Bind this connection to the account before anything else; the
	// backend silently ignores events from unauthenticated sockets.
	login, err := loginFrame(c.userID)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logError("build login frame", err)
		return false
	}
	if err := c.writeFrame(login); err != nil {
		c.errorsTotal.Add(1)
		c.logError("send login", err)
		return false
	}

	done := make(chan struct{})
	defer close(done)
	go c.keepalive(conn, done)
	go func() {
		// Unblock the read loop on shutdown.
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	established := false
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readWindow)); err != nil {
			c.logError("set read deadline", err)
			return established
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.errorsTotal.Add(1)
				c.logWarn("stream read failed", "error", err)
			}
			return established
		}

		c.lastActivity.Store(time.Now().Unix())
		if c.handleFrame(data) {
			established = true
		}
	}
}

// keepalive sends WebSocket ping control frames at the configured
// interval. The server expects the Engine.IO ping payload inside them.
func (c *Client) keepalive(conn wsConn, done <-chan struct{}) {
	interval := time.Duration(c.cfg.PingInterval) * time.Second
	if interval <= 0 {
		interval = 25 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(defaultWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte(pingPayload), deadline); err != nil {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound text frame. Returns true when the
// frame completed the socket.io connect handshake.
func (c *Client) handleFrame(data []byte) bool {
	frame := string(data)

	switch {
	case frame == frameConnect:
		c.connMu.Lock()
		c.connected = true
		c.connMu.Unlock()

		if c.everConnected.Swap(true) {
			c.reconnectsTotal.Add(1)
		}
		c.logInfo("stream connected")
		c.flushSubscriptions()
		return true

	case frame == frameDisconnect:
		c.logWarn("server closed namespace")
		c.connMu.Lock()
		c.connected = false
		conn := c.conn
		c.connMu.Unlock()
		if conn != nil {
			conn.Close()
		}

	case strings.HasPrefix(frame, frameEvent):
		c.handleEvent(data)

	case strings.HasPrefix(frame, frameOpen):
		// Handshake parameters; keepalive timing comes from config.

	case strings.HasPrefix(frame, framePing):
		// Engine.IO ping over a text frame; answer in kind.
		if err := c.writeFrame(append([]byte(framePong), data[len(framePing):]...)); err != nil {
			c.logWarn("pong failed", "error", err)
		}

	case strings.HasPrefix(frame, framePong), strings.HasPrefix(frame, frameClose):
		// Nothing to do; activity tracking already happened.
	}

	return false
}

// handleEvent decodes an event frame and forwards status reports.
func (c *Client) handleEvent(data []byte) {
	name, body, err := decodeEvent(data)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logWarn("undecodable event frame", "error", err)
		return
	}
	if name != statusEventName {
		c.logDebug("ignoring event", "name", name)
		return
	}

	ev, err := decodeStatusBody(body)
	if err != nil {
		if errors.Is(err, protocol.ErrNotStatus) {
			return
		}
		c.errorsTotal.Add(1)
		c.logWarn("malformed status event", "error", err)
		return
	}

	c.eventsRx.Add(1)

	c.callbackMu.RLock()
	callback := c.onStatus
	c.callbackMu.RUnlock()
	if callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logError("status callback panic", fmt.Errorf("%v", r))
				}
			}()
			callback(ev)
		}()
	}
}

// Subscribe registers interest in an endpoint's status reports.
//
// While disconnected the endpoint is queued and the handshake runs when
// the session is next established; that is not an error. Handshakes are
// replayed for every known endpoint on each reconnect.
func (c *Client) Subscribe(endpoint string) error {
	if !c.IsConnected() {
		c.subMu.Lock()
		c.pending[endpoint] = struct{}{}
		c.subMu.Unlock()
		c.logDebug("subscription queued", "endpoint", endpoint)
		return nil
	}

	if err := c.sendSubscribe(endpoint); err != nil {
		c.subMu.Lock()
		c.pending[endpoint] = struct{}{}
		c.subMu.Unlock()
		return err
	}

	c.subMu.Lock()
	c.subscribed[endpoint] = struct{}{}
	delete(c.pending, endpoint)
	c.subMu.Unlock()
	return nil
}

// sendSubscribe runs the three-frame handshake for one endpoint.
func (c *Client) sendSubscribe(endpoint string) error {
	frames, err := subscribeFrames(endpoint)
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := c.writeFrame(frame); err != nil {
			return fmt.Errorf("subscribe %s: %w", endpoint, err)
		}
	}
	c.logDebug("subscribed", "endpoint", endpoint)
	return nil
}

// flushSubscriptions replays handshakes for all known endpoints after
// the connect frame. Failures go back on the pending queue.
func (c *Client) flushSubscriptions() {
	c.subMu.Lock()
	endpoints := make([]string, 0, len(c.subscribed)+len(c.pending))
	for ep := range c.subscribed {
		endpoints = append(endpoints, ep)
	}
	for ep := range c.pending {
		endpoints = append(endpoints, ep)
	}
	c.pending = make(map[string]struct{})
	c.subMu.Unlock()

	for _, ep := range endpoints {
		if err := c.sendSubscribe(ep); err != nil {
			c.errorsTotal.Add(1)
			c.logWarn("subscription replay failed", "endpoint", ep, "error", err)
			c.subMu.Lock()
			delete(c.subscribed, ep)
			c.pending[ep] = struct{}{}
			c.subMu.Unlock()
			continue
		}
		c.subMu.Lock()
		c.subscribed[ep] = struct{}{}
		c.subMu.Unlock()
	}
}

// Publish sends a command payload as an event_push frame.
//
// Sends while disconnected fail fast with ErrNotConnected and are never
// queued; convergence comes from the device's next status report.
func (c *Client) Publish(endpoint string, payload []byte) error {
	if !c.IsConnected() {
		c.eventsDropped.Add(1)
		return fmt.Errorf("%w: dropping send to %s", ErrNotConnected, endpoint)
	}

	frame, err := encodeEvent("event_push", string(payload))
	if err != nil {
		return err
	}
	if err := c.writeFrame(frame); err != nil {
		c.eventsDropped.Add(1)
		c.errorsTotal.Add(1)
		return fmt.Errorf("publish to %s: %w", endpoint, err)
	}

	c.eventsTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// writeFrame writes one text frame to the current connection.
func (c *Client) writeFrame(data []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SetOnStatus sets the callback for decoded status events.
//
// The callback is invoked from the receive goroutine; it should not
// block. Panics are recovered and logged.
func (c *Client) SetOnStatus(callback func(protocol.StatusEvent)) {
	c.callbackMu.Lock()
	c.onStatus = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected reports whether the socket.io session is established.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		EventsTx:        c.eventsTx.Load(),
		EventsRx:        c.eventsRx.Load(),
		EventsDropped:   c.eventsDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
	}
}

// nextBackoff grows the delay by half again, capped at maxDelay.
func nextBackoff(current, maxDelay time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > maxDelay {
		next = maxDelay
	}
	return next
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, err error) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
