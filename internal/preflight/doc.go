// Package preflight provides readiness checks for the external tools,
// directories, folder bindings, and remote destination that wsideid depends
// on.
//
// The serve runtime calls RunAll once at startup and logs failures; the CLI
// "wsideid preflight" command renders the same results as a table.
// Checks for disabled features are skipped.
package preflight
