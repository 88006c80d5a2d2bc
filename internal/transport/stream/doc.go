// Package stream implements the socket.io event stream transport.
//
// The backend exposes a socket.io v2 endpoint (Engine.IO protocol 3)
// over WebSocket. This package speaks just enough of that protocol for
// device synchronization: the open/connect handshake, login, per-device
// group subscription, event push, and the keepalive the server enforces.
//
// Connection lifecycle is owned by Run, which dials, services the
// session, and reconnects with capped exponential backoff until its
// context is cancelled. Subscriptions requested while disconnected are
// queued and replayed once the session is established; subscriptions
// from previous sessions are replayed on every reconnect.
//
// Outbound commands are fire-and-forget: Publish fails fast with
// ErrNotConnected while the session is down, and callers rely on the
// subscription replay plus the device's next status report to converge.
package stream
