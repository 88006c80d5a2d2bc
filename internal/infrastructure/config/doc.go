// Package config loads and validates the btsync configuration.
//
// Configuration is read from a YAML file with three layers of precedence:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variable overrides (BTSYNC_SECTION_KEY)
//
// Connection parameters for the cloud backend (stream URL, broker host,
// MQTT client identifier) are opaque strings here: they come from the
// external credential/session layer and the sync core never inspects
// them beyond passing them to the transports.
//
// The devices list is the discovery boundary: each entry names an
// endpoint, which transport routes it, and an optional local address for
// the fast path. A standalone deployment writes this list by hand; a
// larger installation generates it from the discovery service.
package config
