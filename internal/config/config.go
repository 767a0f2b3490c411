// ABOUTME: YAML configuration for the catalog server
// ABOUTME: Covers listen address, stores, logging, principals, and access rules

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/aimmlab/xascat/pkg/access"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	DataDir    string `yaml:"data_dir"`

	Log LogConfig `yaml:"log"`

	// APIKeys maps bearer keys to principals.
	APIKeys []APIKey `yaml:"api_keys"`

	Access AccessConfig `yaml:"access"`

	// Datasets restricts the specs each dataset accepts. Datasets
	// without an entry accept any spec.
	Datasets map[string][]string `yaml:"datasets"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	WithCaller bool   `yaml:"with_caller"`
}

// APIKey binds an API key to a principal identity.
type APIKey struct {
	Key       string `yaml:"key"`
	Principal string `yaml:"principal"`
	Admin     bool   `yaml:"admin"`
}

// AccessConfig selects and parameterizes the access policy.
type AccessConfig struct {
	// Mode is "flat" or "dataset".
	Mode string `yaml:"mode"`

	// Flat maps principal ids to grants ("r" or "rw") applied to every
	// record, used in flat mode.
	Flat map[string]string `yaml:"flat"`

	// PerPrincipal maps principal ids to dataset grant tables, used in
	// dataset mode. The reserved "default" dataset key is the fallback
	// grant for datasets the table does not name.
	PerPrincipal map[string]map[string]string `yaml:"per_principal"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DBPath:     "xascat.db",
		DataDir:    "data",
		Log:        LogConfig{Level: "info"},
		Access:     AccessConfig{Mode: "flat"},
	}
}

// Load reads and validates a configuration file. Fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field consistency.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	switch c.Access.Mode {
	case "flat", "dataset":
	default:
		return fmt.Errorf("config: access mode must be flat or dataset, got %q", c.Access.Mode)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	seen := make(map[string]bool, len(c.APIKeys))
	for _, k := range c.APIKeys {
		if k.Key == "" || k.Principal == "" {
			return fmt.Errorf("config: api keys need both key and principal")
		}
		if seen[k.Key] {
			return fmt.Errorf("config: duplicate api key for principal %s", k.Principal)
		}
		seen[k.Key] = true
	}
	return nil
}

// Policy builds the configured access policy.
func (c *Config) Policy() (access.Policy, error) {
	switch c.Access.Mode {
	case "flat":
		return access.NewFlatPolicy(c.Access.Flat)
	case "dataset":
		return access.NewDatasetPolicy(c.Access.PerPrincipal)
	default:
		return nil, fmt.Errorf("config: access mode must be flat or dataset, got %q", c.Access.Mode)
	}
}

// Principals builds the API key lookup table.
func (c *Config) Principals() map[string]access.Principal {
	table := make(map[string]access.Principal, len(c.APIKeys))
	for _, k := range c.APIKeys {
		table[k.Key] = access.Principal{ID: k.Principal, Admin: k.Admin}
	}
	return table
}
