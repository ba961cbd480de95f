// Package config loads store configuration from YAML, CUE or JSON files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/changestore/internal/connection"
	"github.com/roach88/changestore/internal/schema"
)

// DefaultDir is where stores live when no directory is configured.
const DefaultDir = ".changestore"

// ErrInvalid is returned for configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config is the on-disk store configuration.
type Config struct {
	// Dir holds the store files. Relative paths resolve against the
	// working directory.
	Dir string `yaml:"dir" json:"dir,omitempty"`

	// Store is the store name.
	Store string `yaml:"store" json:"store"`

	// Version is the schema version; bump it to migrate.
	Version int `yaml:"version" json:"version"`

	// Collections maps collection names to their key fields.
	Collections schema.Descriptor `yaml:"collections" json:"collections"`
}

// Load reads a configuration file, choosing the format by extension:
// .yaml and .yml are YAML; .cue and .json are evaluated as CUE. A
// directory is loaded as a CUE package.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w: %w", ErrInvalid, err)
	}

	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir():
		cfg, err = loadCUEDir(path)
	case ext == ".yaml" || ext == ".yml":
		cfg, err = loadYAMLFile(path)
	case ext == ".cue" || ext == ".json":
		cfg, err = loadCUEFile(path)
	default:
		return nil, fmt.Errorf("config: %w: unsupported file type %q", ErrInvalid, ext)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes YAML configuration. Unknown fields are rejected.
func ParseYAML(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w: %v", ErrInvalid, err)
	}
	return &cfg, nil
}

// Validate reports the first problem with the configuration.
func (c *Config) Validate() error {
	if err := c.Connection().Validate(); err != nil {
		return fmt.Errorf("config: %w: %v", ErrInvalid, err)
	}
	return nil
}

// Schema returns a copy of the declared collections.
func (c *Config) Schema() schema.Descriptor {
	return c.Collections.Clone()
}

// Connection returns the configuration a store is opened with.
func (c *Config) Connection() connection.Config {
	return connection.Config{
		Schema:    c.Schema(),
		StoreName: c.Store,
		Version:   c.Version,
	}
}
