// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable
// expansion. Values already present in target are kept for keys the file
// does not set.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	return Parse(data, target)
}

// Parse decodes YAML data into target after expanding ${VAR} and
// ${VAR:-default} references, then runs target's Validate if it has one.
func Parse[T any](data []byte, target *T) error {
	expanded := os.Expand(string(data), lookupEnv)

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}

// lookupEnv resolves one reference. "NAME:-fallback" yields fallback when
// NAME is unset or empty.
func lookupEnv(ref string) string {
	name, fallback, hasDefault := strings.Cut(ref, ":-")
	v := os.Getenv(name)
	if v == "" && hasDefault {
		return fallback
	}
	return v
}

// LoadWithDefaults loads configuration with fallback to a default file.
func LoadWithDefaults[T any](filename, defaultFile string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		if defaultFile != "" {
			return Load(defaultFile, target)
		}
		return fmt.Errorf("config file not found: %s", filename)
	}
	return Load(filename, target)
}
