// Package config defines the relay configuration, its defaults, and the
// loader that reads it from JSON or YAML files with environment overrides.
//
// Loading order: defaults, then the config file, then MAVRELAY_* environment
// variables. Validate runs last so every source is checked the same way.
//
// Durations are written as Go duration strings ("5s", "250ms") in both JSON
// and YAML.
package config
