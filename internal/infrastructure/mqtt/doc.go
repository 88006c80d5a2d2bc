// Package mqtt wraps paho.mqtt.golang for the BuildTrack broker.
//
// The backend broker only accepts MQTT over WebSocket (wss on port 443,
// path /mqtt) and authenticates by client identifier rather than
// username/password. This package hides those quirks behind a small
// client with:
//
//   - connection management and automatic reconnection with backoff
//   - subscription tracking with restore-on-reconnect
//   - connect/disconnect callbacks for higher layers
//   - panic recovery around message handlers
//
// The broker transport (internal/transport/broker) builds on this
// client; nothing else talks MQTT directly.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package mqtt
