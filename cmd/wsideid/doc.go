// Command wsideid is the operator CLI for the whole-slide image
// de-identification workflow.
//
// Commands open the local object store directly, so they work with or
// without a running "wsideid serve" process. The serve daemon adds the
// ingest poll loop and the metrics endpoint. Remote export credentials may
// be supplied through a .env file in the working directory.
package main
