// Package config loads, normalizes, and validates videopipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks for storage credentials and API keys. The Config type
// centralizes every knob the daemon and CLI need so staging, work, and log
// directories plus object storage settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
