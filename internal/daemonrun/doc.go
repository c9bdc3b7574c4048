// Package daemonrun assembles the wsideid runtime from configuration.
//
// Build wires the store, guard, lifecycle machine, OCR and redaction
// engines, import/export orchestrator, job runner, and metrics into a
// workflow.Service shared by the CLI and the serve daemon. Run drives the
// serve process until it receives SIGINT or SIGTERM.
package daemonrun
