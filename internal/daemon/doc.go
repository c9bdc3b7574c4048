// Package daemon coordinates the long-running wsideid serve process.
//
// It owns the single-instance flock, starts and stops the workflow manager,
// and serves Prometheus metrics plus a liveness probe when a metrics bind
// address is configured. Workflow logic stays in its own packages; the
// daemon focuses on startup, shutdown, and status.
package daemon
