// Package config loads, normalizes, and validates beamline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and centralizes every knob the daemon and CLI
// need: data/log directories, control socket and API bind addresses, logging
// format, simulated device declarations, and the optional NATS telemetry
// mirror.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
