// Package config loads, normalizes, and validates the renderforge TOML
// configuration.
package config
