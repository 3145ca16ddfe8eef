// Package config loads and validates the YAML service configuration.
// Environment-variable references in values are expanded at load time.
package config
