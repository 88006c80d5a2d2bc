// Package device is the synchronization core: it owns the state table,
// routes commands to the right transport, and folds status reports from
// both transports into one view.
//
// Each endpoint is routed to exactly one transport (stream or broker);
// status traffic and commands for that endpoint only ever use its route.
// Commands are optimistic: the expected power state lands in the table
// as soon as the command is sent, and the device's next status report
// corrects any divergence.
//
// When a controller's LAN address is known, commands are additionally
// raced over a direct local HTTP call (the fast path). The fast path is
// best effort only: failures are logged and swallowed, and the cloud
// command always goes out regardless.
package device
