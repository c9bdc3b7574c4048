// Package logs reads the wsideid JSON log file for `wsideid logs`.
//
// Tail returns the last N lines or everything after a byte offset, and can
// wait for new lines in follow mode. Filter narrows lines to one item, job,
// or component using the structured keys written by internal/logging.
package logs
