// Package stream is the client side of the daemon's telemetry API.
//
// Each feed is an NDJSON HTTP response decoded into typed events. A
// subscription ends in exactly one of three ways: the server closed the feed
// (ErrEnded), the caller closed it (ErrClosed), or it broke mid-stream
// (*FailureError). Consumers that need to distinguish a quiet shutdown from
// a lost connection check the terminal error; Watch treats both clean
// terminals as a normal return.
package stream
