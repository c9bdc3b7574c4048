// Package logging builds the slog loggers used across wsideid.
//
// New picks a console or JSON handler, tees output to every configured path,
// and wraps the result in a scrubber that masks label text and manifest
// records so recognized PHI never reaches a log file. Field constants and
// WithContext keep item, action, job, and correlation ids under stable keys.
package logging
