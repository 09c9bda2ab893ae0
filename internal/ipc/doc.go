// Package ipc exposes the daemon control plane over JSON-RPC Unix sockets
// and ships the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs for
// script upload, execution control, and daemon status. Streaming telemetry
// is not served here; that lives on the HTTP API.
package ipc
