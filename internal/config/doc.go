// Package config loads, normalizes, and validates distill configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DISTILL_LLM_API_KEY. The Config type centralizes every knob the daemon and
// CLI need, allowing library/staging directories and external service
// endpoints to be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
