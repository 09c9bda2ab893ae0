// Package logging constructs the slog loggers used across beamline.
//
// It offers a human-oriented console handler for interactive use, a JSON
// handler for machine consumption, attribute helpers shared by daemon and CLI
// code, and a no-op logger for tests. Build loggers through New or
// NewFromConfig so level parsing and output wiring stay consistent.
package logging
