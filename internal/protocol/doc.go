// Package protocol defines the wire shapes exchanged with the BuildTrack
// backend and with devices on the local network.
//
// The backend speaks the same JSON command envelope over two transports
// (the socket.io stream and the MQTT broker), and reports device status
// in one shared shape on both. Centralising the encode/decode here gives
// the device manager a single merge path regardless of which transport a
// message arrived on.
//
// # Status payloads
//
// A status message carries an ordered pin array where index+1 is the
// channel number. Older controller firmware reports a bare integer per
// pin (power only); newer firmware reports {state, speed} objects, and
// some revisions stringify the numbers. PinState absorbs all variants.
//
// # Thread Safety
//
// All types are plain values; encode/decode functions are pure.
package protocol
