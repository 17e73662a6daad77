// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Every field is optional: LoadWithDefaults fills in values suitable for a
// broker running on localhost.
package config
