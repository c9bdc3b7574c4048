// Package jobs runs batch work as persisted jobs.
//
// A job moves from RUNNING to SUCCESS or ERROR and keeps an append-only log
// of human-readable lines in the store, so `wsideid jobs show` can follow a
// batch started by another process. Functions run synchronously or on a
// background goroutine; panics are recovered and recorded as ERROR.
package jobs
