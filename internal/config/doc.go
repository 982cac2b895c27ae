// Package config loads, normalizes, and validates sessiond configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob
// the daemon and CLI need: polling cadence, MQTT broker, recorder endpoint,
// chamber-to-camera wiring, and session storage directories.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
