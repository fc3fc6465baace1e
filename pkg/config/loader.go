package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Common errors for configuration loading.
var (
	ErrFileNotFound = errors.New("configuration file not found")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrEmptyFile    = errors.New("configuration file is empty")
)

// LoadFromFile reads, parses, defaults, and validates the proxy configuration.
// Any failure here is a startup fatal for the caller.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	return Parse(data)
}

// Parse parses YAML bytes into a validated Config. Unknown keys are rejected
// so typos in route definitions fail at startup instead of silently
// deregistering a queue.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	cfg.applyDefaults()

	if result := cfg.Validate(); !result.IsValid() {
		return nil, fmt.Errorf("validation failed:\n%s", result.Error())
	}

	return &cfg, nil
}

// applyDefaults fills optional fields before validation.
func (c *Config) applyDefaults() {
	for i := range c.Publishers {
		if c.Publishers[i].ContentType == "" {
			c.Publishers[i].ContentType = ContentTypeBinary
		}
	}
	for i := range c.Subscribers {
		s := &c.Subscribers[i]
		if s.ContentType == "" {
			s.ContentType = ContentTypeBinary
		}
		if s.Prefetch == 0 {
			s.Prefetch = 1
		}
		if s.TimeoutMs == 0 {
			s.TimeoutMs = 2000
		}
		if s.Backoff == "" {
			s.Backoff = BackoffFixed
		}
	}
}
