package config

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// Load parses YAML or JSON data on top of the defaults and validates the result.
func Load(data []byte) (*Options, error) {
	opts := Default()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// LoadFile loads the options from a YAML or JSON file.
func LoadFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// Export returns the options as YAML.
func (o *Options) Export() ([]byte, error) {
	return yaml.Marshal(o)
}
