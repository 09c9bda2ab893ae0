// Package devices models the instrument rack served by the daemon.
//
// Device kinds form a closed set (Motor, Detector, Camera) handled by
// exhaustive switches. The registry owns all device state, emits parameter
// changes and device-state deltas through the telemetry hub, and runs the
// simulators that produce detector readings and camera frames at configured
// rates. Real driver backends would replace the simulators behind the same
// registry operations.
package devices
