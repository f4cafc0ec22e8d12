// Package config loads reconstruction run configuration from environment
// variables, with an optional YAML file overlay for dataset geometry.
package config
