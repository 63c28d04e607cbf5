// Package config provides configuration management for vdb.
//
// Config file locations (priority order):
//  1. $VDB_CONFIG
//  2. ./vdb.yaml
//  3. ~/.config/vdb/config.yaml
//  4. /etc/vdb/config.yaml
//
// Environment variables (VDB_*) override values read from the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	vdberrors "vdb/internal/errors"
)

// Defaults for a new installation
const (
	DefaultAddr            = ":8080"
	DefaultDataDir         = "./data"
	DefaultWindowRows      = 512
	DefaultWindowBytes     = ByteSize(2 << 20)
	DefaultPageSize        = 50
	DefaultMaxPageSize     = 500
	DefaultShutdownTimeout = Duration(10 * time.Second)
	DefaultDebounce        = Duration(250 * time.Millisecond)
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.finish(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) finish() error {
	if err := c.ApplyEnv(); err != nil {
		return err
	}
	c.applyDefaults()
	return c.Validate()
}

// ApplyEnv overrides c with any VDB_* environment variables that are set
func (c *Config) ApplyEnv() error {
	targets := []any{&c.Server, &c.Storage, &c.Schemas, &c.Window, &c.Paging, &c.Log, &c.Telemetry}
	for _, target := range targets {
		if err := ParseEnv(target); err != nil {
			return vdberrors.Wrap(vdberrors.CodeInvalidConfig, "environment override", err)
		}
	}
	return nil
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = DefaultDataDir
	}
	if c.Schemas.Debounce <= 0 {
		c.Schemas.Debounce = DefaultDebounce
	}
	if c.Window.Rows == 0 {
		c.Window.Rows = DefaultWindowRows
	}
	if c.Window.Bytes == 0 {
		c.Window.Bytes = DefaultWindowBytes
	}
	if c.Paging.DefaultSize <= 0 {
		c.Paging.DefaultSize = DefaultPageSize
	}
	if c.Paging.MaxSize <= 0 {
		c.Paging.MaxSize = DefaultMaxPageSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the loaded config
func (c *Config) Validate() error {
	if c.Window.Rows < 0 {
		return vdberrors.Newf(vdberrors.CodeInvalidConfig, "window.rows must not be negative, got %d", c.Window.Rows)
	}
	if c.Paging.DefaultSize > c.Paging.MaxSize {
		return vdberrors.Newf(vdberrors.CodeInvalidConfig,
			"paging.default_size %d exceeds paging.max_size %d", c.Paging.DefaultSize, c.Paging.MaxSize)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return vdberrors.Newf(vdberrors.CodeInvalidConfig, "log.format must be text or json, got %q", c.Log.Format)
	}
	seen := make(map[string]bool, len(c.Repositories))
	for _, repo := range c.Repositories {
		if err := repo.Validate(); err != nil {
			return err
		}
		if seen[repo.Name] {
			return vdberrors.Newf(vdberrors.CodeInvalidConfig, "repository %s listed twice", repo.Name)
		}
		seen[repo.Name] = true
	}
	for _, h := range c.Hooks {
		if h.Authority == "" || h.Entity == "" {
			return vdberrors.New(vdberrors.CodeInvalidConfig, "hook needs an authority and an entity")
		}
	}
	return nil
}
