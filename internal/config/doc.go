// Package config loads, normalizes, and validates wsideid configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for remote
// credentials. Role folder bindings live here too, and Save writes them back
// after `wsideid setup` creates the folders.
package config
