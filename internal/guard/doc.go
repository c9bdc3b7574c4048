// Package guard serializes long batch operations and tracks items that are
// currently under an action.
//
// Registry holds the in-flight set. Every acquisition returns a release
// function that callers defer, so an item leaves the set on every exit path.
// Acquire blocks while another action holds the same item, which serializes
// two requests for one item; TryAcquire refuses instead. Folder scans consult
// the set read-only through InFlight and Snapshot.
//
// Guard owns the ingest and export locks. Each lock is a process-wide mutex
// backed by a flock file in the data directory so a CLI invocation and a
// running `serve` process never ingest at the same time.
package guard
