// Package engine owns the script execution lifecycle.
//
// One execution runs at a time. Uploads are validated before storage so a
// syntactically broken script never reaches RUNNING; a started execution
// always lands in COMPLETED or ERROR, including daemon-initiated stops. The
// engine also drives the periodic status feed on the telemetry hub.
package engine
