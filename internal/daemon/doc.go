// Package daemon coordinates the long-running beamline process.
//
// It wires configuration, script storage, the device rack, the execution
// engine, and the telemetry hub into a single lifecycle with flock-based
// locking to prevent multiple instances. The daemon also owns the HTTP
// streaming API that serves the five telemetry feeds as NDJSON.
//
// Keep orchestration logic here: interpretation, device simulation, and
// telemetry fan-out live in their respective packages while the daemon
// focuses on startup, shutdown, and high level coordination.
package daemon
