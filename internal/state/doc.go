// Package state holds the in-memory mirror of remote device state.
//
// The Table maps (endpoint, channel) to the last known power/speed pair.
// It has no network awareness: transports decode status messages and the
// device manager writes the results here; UI-facing reads come straight
// from the table and never touch the network.
//
// An absent entry means "never reported and never commanded" and reads as
// off with zero speed. Entries appear either when a command is issued
// (optimistic write) or when a status message arrives.
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single mutex guards the whole
// table; at tens to low hundreds of devices finer granularity buys nothing.
package state
