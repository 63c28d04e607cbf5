package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"vdb/internal/domain"
	"vdb/internal/telemetry"
)

// Config is the vdb configuration file
type Config struct {
	Version      int                       `yaml:"version"`
	Server       ServerConfig              `yaml:"server"`
	Storage      StorageConfig             `yaml:"storage"`
	Schemas      SchemasConfig             `yaml:"schemas"`
	Window       WindowConfig              `yaml:"window"`
	Paging       PagingConfig              `yaml:"paging"`
	Log          LogConfig                 `yaml:"log"`
	Telemetry    telemetry.Config          `yaml:"telemetry"`
	Repositories []domain.RepositoryConfig `yaml:"repositories,omitempty"`
	Hooks        []HookConfig              `yaml:"hooks,omitempty"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string   `yaml:"addr" env:"VDB_ADDR"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" env:"VDB_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds the repository storage location.
// Dir ":memory:" keeps every repository in memory
type StorageConfig struct {
	Dir string `yaml:"dir" env:"VDB_DATA_DIR"`
}

// SchemasConfig points at schema definition files registered at startup
type SchemasConfig struct {
	Dir      string   `yaml:"dir,omitempty" env:"VDB_SCHEMA_DIR"`
	Watch    bool     `yaml:"watch" env:"VDB_SCHEMA_WATCH"`
	Debounce Duration `yaml:"debounce" env:"VDB_SCHEMA_DEBOUNCE"`
}

// WindowConfig bounds the rows and bytes copied per page
type WindowConfig struct {
	Rows  int      `yaml:"rows" env:"VDB_WINDOW_ROWS"`
	Bytes ByteSize `yaml:"bytes" env:"VDB_WINDOW_BYTES"`
}

// PagingConfig bounds HTTP page sizes
type PagingConfig struct {
	DefaultSize int `yaml:"default_size" env:"VDB_PAGE_SIZE"`
	MaxSize     int `yaml:"max_size" env:"VDB_PAGE_SIZE_MAX"`
}

// LogConfig selects the log level and handler
type LogConfig struct {
	Level  string `yaml:"level" env:"VDB_LOG_LEVEL"`
	Format string `yaml:"format" env:"VDB_LOG_FORMAT"` // text | json
}

// HookConfig attaches built-in insert hooks to an entity
type HookConfig struct {
	Authority string   `yaml:"authority"`
	Entity    string   `yaml:"entity"`
	Timestamp string   `yaml:"timestamp,omitempty"`
	Required  []string `yaml:"required,omitempty"`
}

// Duration wraps time.Duration for YAML and environment parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a byte count written in human form ("2MiB", "512 kB")
type ByteSize uint64

// UnmarshalYAML implements yaml.Unmarshaler
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return b.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse byte size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// String renders b with IEC units
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Int returns b as an int
func (b ByteSize) Int() int {
	return int(b)
}
