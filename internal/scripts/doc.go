// Package scripts persists uploaded experiment scripts and their executions.
//
// Storage is SQLite (modernc.org/sqlite) under the daemon data directory,
// WAL-mode with a busy timeout, migrated on open. Scripts are immutable once
// uploaded; executions record the full lifecycle so status queries stay pure
// reads and survive daemon restarts.
package scripts
