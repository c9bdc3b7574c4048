// Package store is the hierarchical object store wsideid runs on: folders,
// items with merged JSON metadata, files, and background jobs, persisted in
// SQLite with file bytes under the configured assetstore directory.
//
// Lookups return (nil, nil) when a row is absent. Each exported operation is
// one atomic step; callers compose them and must not assume transactions
// across calls.
package store
