// Package services defines shared utilities consumed by the workflow
// components and their external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp item IDs, action names, job IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so interactive callers
//     and batch jobs classify failures the same way.
//
// Use these helpers when wiring new workflow logic so error handling and
// observability stay uniform.
package services
