// Package workflow dispatches item actions and batch operations.
//
// Service is the single entry point for the fixed action set (process,
// reject, quarantine, unquarantine, finish, ocr). Every action holds its item
// in the in-flight registry for its full duration, so two actions on one item
// never interleave and the next-item scans skip it. Bulk actions run as jobs
// that log per-item failures and keep going. Manager runs the optional ingest
// poll for the long-running `serve` command and counts actions and jobs in
// Prometheus collectors.
package workflow
