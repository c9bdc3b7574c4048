// Package redaction runs the "process" transition: it asks the codec for a
// redacted file, archives an untouched copy under the original folder,
// replaces the item's content, appends one audit entry to the item's
// `redacted` history, and moves the item to the processed folder.
//
// Only the codec call is guarded. A codec failure returns ErrRedaction with
// nothing mutated; later steps are not rolled back if they fail.
package redaction
