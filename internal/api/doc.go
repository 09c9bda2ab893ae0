// Package api defines the wire representations shared by the daemon's HTTP
// streaming server and its clients.
//
// It owns the telemetry event DTOs (status snapshots, measurement samples,
// camera frames, parameter changes, device-state updates) and the daemon
// status payload. Events cross the wire as newline-delimited JSON; the
// measurement payload is a tagged union so exactly one variant is ever
// active.
//
// Reuse these types when adding new feeds so the stream protocol stays stable
// for existing clients.
package api
