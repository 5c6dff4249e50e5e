// Package config reads the YAML configuration of the elevation command.
package config

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/twpayne/go-elevation-engine"
)

// Source types.
const (
	SourceTypeEUDEM     = "eudem"
	SourceTypeTileStore = "tilestore"
)

var sourceTypes = []string{SourceTypeEUDEM, SourceTypeTileStore}

// Config represents the top-level configuration
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Query    QueryConfig    `yaml:"query"`
	Sources  []SourceConfig `yaml:"sources"`
}

// QueryConfig holds the default query parameters.
type QueryConfig struct {
	Types         []string `yaml:"types"`
	Authoritative *bool    `yaml:"authoritative"`
	Order         []string `yaml:"order"`
	Interpolate   bool     `yaml:"interpolate"`
}

// SourceConfig represents a source to register.
type SourceConfig struct {
	Type      string `yaml:"type"`
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for i, source := range c.Sources {
		if !slices.Contains(sourceTypes, source.Type) {
			return fmt.Errorf("source %d: unknown type %q", i, source.Type)
		}
		if source.Path == "" {
			return fmt.Errorf("source %d: path is required", i)
		}
		if source.CacheSize < 0 {
			return fmt.Errorf("source %d: negative cache size", i)
		}
	}
	if _, err := c.Query.Orders(); err != nil {
		return err
	}
	return nil
}

// Orders returns the parsed orders of q.
func (q *QueryConfig) Orders() ([]elevation.Order, error) {
	orders := make([]elevation.Order, 0, len(q.Order))
	for _, s := range q.Order {
		order, err := elevation.ParseOrder(s)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Parameters returns the query parameters described by q.
func (q *QueryConfig) Parameters() (elevation.QueryParameters, error) {
	params := elevation.NewQueryParameters()
	orders, err := q.Orders()
	if err != nil {
		return params, err
	}
	params.Order = orders
	params.Types = slices.Clone(q.Types)
	if q.Authoritative != nil {
		params.Authoritative = elevation.Bool(*q.Authoritative)
	}
	return params, nil
}
