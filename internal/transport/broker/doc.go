// Package broker implements the MQTT transport for broker-routed
// devices.
//
// Each endpoint owns a topic pair: status reports arrive on
// {endpoint}/status and commands go out on {endpoint}/execute.
// Subscribing to an endpoint also publishes a deviceStatus query so the
// state table is primed without waiting for the device to change.
//
// The underlying MQTT client reconnects on its own; this package
// remembers every endpoint ever subscribed and replays the
// subscription plus the priming query on each reconnect, so state
// missed during an outage is recovered.
package broker
