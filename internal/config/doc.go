// Package config loads, normalizes, and validates clipforge's TOML
// configuration. Values merge over repository defaults so a missing or
// partial file always yields a runnable configuration.
package config
