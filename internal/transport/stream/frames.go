package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/buildtrack-sync/internal/protocol"
)

// Engine.IO packet type prefixes (protocol version 3). A text frame's
// first byte selects the packet type; message packets carry a socket.io
// packet whose own first byte follows immediately.
const (
	frameOpen  = "0" // handshake JSON follows
	frameClose = "1"
	framePing  = "2"
	framePong  = "3"

	// frameConnect signals the socket.io namespace is ready. Only after
	// this may events be exchanged.
	frameConnect = "40"

	// frameDisconnect signals the server is closing the namespace.
	frameDisconnect = "41"

	// frameEvent prefixes a JSON array of [eventName, body...].
	frameEvent = "42"
)

// pingPayload is the keepalive payload the server expects, carried in
// WebSocket ping control frames.
const pingPayload = "2"

// encodeEvent builds an event frame: 42["name","body"].
//
// The body is carried as a string, so JSON payloads end up
// double-encoded on the wire. That is what the backend expects.
func encodeEvent(name, body string) ([]byte, error) {
	arr, err := json.Marshal([2]string{name, body})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFrameInvalid, err)
	}
	return append([]byte(frameEvent), arr...), nil
}

// decodeEvent parses an event frame into its name and raw body.
// The caller must have already matched the frameEvent prefix.
func decodeEvent(frame []byte) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(frame[len(frameEvent):], &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrFrameInvalid, err)
	}
	if len(parts) < 2 {
		return "", nil, fmt.Errorf("%w: event array has %d elements", ErrFrameInvalid, len(parts))
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %w", ErrFrameInvalid, err)
	}
	return name, parts[1], nil
}

// decodeStatusBody parses an event body into a status event. The body
// is usually a JSON object, but some backend paths deliver it as a
// JSON string containing JSON.
func decodeStatusBody(body json.RawMessage) (protocol.StatusEvent, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return protocol.StatusEvent{}, fmt.Errorf("%w: %w", ErrFrameInvalid, err)
		}
		return protocol.ParseStatus([]byte(inner))
	}
	return protocol.ParseStatusValue(body)
}

// loginFrame builds the frame that binds this connection to an account.
// Must be sent as soon as the WebSocket opens.
func loginFrame(userID string) ([]byte, error) {
	return encodeEvent("login", userID)
}

// subscribeFrames builds the three-frame handshake that registers
// interest in one endpoint's status reports:
//
//  1. joinGroup puts this connection in the endpoint's broadcast group.
//  2. connectivityStatus asks for online/offline tracking. Its body is
//     not valid JSON (the quoting is broken at the source); the backend
//     parses it with a regex, so the broken form is reproduced verbatim.
//  3. event_push with a deviceStatus command primes the state table
//     with a full report.
func subscribeFrames(endpoint string) ([][]byte, error) {
	join, err := encodeEvent("joinGroup", endpoint)
	if err != nil {
		return nil, err
	}

	connectivity := []byte(frameEvent +
		`["connectivityStatus","{"entityID":"` + endpoint + `","event":"connectivityStatus"}"]`)

	query, err := protocol.NewDeviceStatusQuery(endpoint).Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFrameInvalid, err)
	}
	prime, err := encodeEvent("event_push", string(query))
	if err != nil {
		return nil, err
	}

	return [][]byte{join, connectivity, prime}, nil
}
