package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vdb/internal/domain"
	vdberrors "vdb/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %s, want %s", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Storage.Dir != DefaultDataDir {
		t.Errorf("Storage.Dir = %s, want %s", cfg.Storage.Dir, DefaultDataDir)
	}
	if cfg.Window.Rows != DefaultWindowRows || cfg.Window.Bytes != DefaultWindowBytes {
		t.Errorf("Window = %+v, want %d rows / %s", cfg.Window, DefaultWindowRows, DefaultWindowBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Storage.Dir = "/var/lib/vdb"
	cfg.Window.Bytes = ByteSize(256 << 10)
	cfg.Repositories = []domain.RepositoryConfig{{Name: "notes", HandlerType: "notes"}}
	cfg.Hooks = []HookConfig{{Authority: "notes", Entity: "note", Timestamp: "created"}}

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}
	if loaded.Storage.Dir != "/var/lib/vdb" {
		t.Errorf("Storage.Dir = %s, want /var/lib/vdb", loaded.Storage.Dir)
	}
	if loaded.Window.Bytes != ByteSize(256<<10) {
		t.Errorf("Window.Bytes = %s, want 256 KiB", loaded.Window.Bytes)
	}
	if len(loaded.Repositories) != 1 || loaded.Repositories[0].HandlerType != "notes" {
		t.Errorf("Repositories = %+v", loaded.Repositories)
	}
	if len(loaded.Hooks) != 1 || loaded.Hooks[0].Timestamp != "created" {
		t.Errorf("Hooks = %+v", loaded.Hooks)
	}
}

func TestLoadFromPathParsesHumanSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vdb.yaml")
	writeFile(t, path, `
window:
  rows: 64
  bytes: 512KiB
schemas:
  dir: ./schemas
  watch: true
  debounce: 1s
`)

	cfg, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Window.Rows != 64 {
		t.Errorf("Window.Rows = %d, want 64", cfg.Window.Rows)
	}
	if cfg.Window.Bytes.Int() != 512*1024 {
		t.Errorf("Window.Bytes = %d, want %d", cfg.Window.Bytes.Int(), 512*1024)
	}
	if !cfg.Schemas.Watch || cfg.Schemas.Debounce.Duration() != time.Second {
		t.Errorf("Schemas = %+v", cfg.Schemas)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vdb.yaml")
	writeFile(t, path, `
server:
  addr: ":9000"
storage:
  dir: /from/file
log:
  level: info
`)
	t.Setenv("VDB_DATA_DIR", ":memory:")
	t.Setenv("VDB_WINDOW_BYTES", "1MiB")
	t.Setenv("VDB_LOG_LEVEL", "debug")
	t.Setenv("VDB_OTEL_ENABLED", "true")

	cfg, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Storage.Dir != ":memory:" {
		t.Errorf("Storage.Dir = %s, want :memory:", cfg.Storage.Dir)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %s, want :9000 (file value kept)", cfg.Server.Addr)
	}
	if cfg.Window.Bytes != ByteSize(1<<20) {
		t.Errorf("Window.Bytes = %s, want 1.0 MiB", cfg.Window.Bytes)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if !cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled should be set from the environment")
	}
}

func TestEnvBadValueIsInvalidConfig(t *testing.T) {
	t.Setenv("VDB_WINDOW_BYTES", "lots")

	cfg := DefaultConfig()
	err := cfg.ApplyEnv()
	if !errors.Is(err, vdberrors.ErrInvalidConfig) {
		t.Fatalf("ApplyEnv() error = %v, want INVALID_CONFIG", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative rows", func(c *Config) { c.Window.Rows = -1 }},
		{"page default above max", func(c *Config) { c.Paging.DefaultSize = c.Paging.MaxSize + 1 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"repository without handler", func(c *Config) {
			c.Repositories = []domain.RepositoryConfig{{Name: "orphan"}}
		}},
		{"duplicate repository", func(c *Config) {
			c.Repositories = []domain.RepositoryConfig{
				{Name: "notes", HandlerType: "a"},
				{Name: "notes", HandlerType: "b"},
			}
		}},
		{"hook without entity", func(c *Config) { c.Hooks = []HookConfig{{Authority: "notes"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, vdberrors.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	cfg := DefaultConfig()
	if err := cfg.Save(filepath.Join(tmpDir, ConfigFileName)); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Chdir(tmpDir)

	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	if found := FindConfigPath(); found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}

	explicit := filepath.Join(tmpDir, "explicit.yaml")
	if err := cfg.Save(explicit); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	t.Setenv(EnvConfigPath, explicit)
	if found := FindConfigPath(); found != explicit {
		t.Errorf("FindConfigPath() = %s, want %s", found, explicit)
	}
}

func TestFindConfigPathXDG(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Chdir(t.TempDir())

	want := filepath.Join(tmpDir, ConfigDirName, "config.yaml")
	if err := DefaultConfig().Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if found := FindConfigPath(); found != want {
		t.Errorf("FindConfigPath() = %s, want %s", found, want)
	}
	if got := DefaultConfigPath(); got != want {
		t.Errorf("DefaultConfigPath() = %s, want %s", got, want)
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}

	var parsed Duration
	if err := parsed.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error: %v", err)
	}
	if parsed.Duration() != 90*time.Second {
		t.Errorf("UnmarshalText() = %s, want 1m30s", parsed.Duration())
	}
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"2MiB", 2 << 20},
		{"256 KiB", 256 << 10},
		{"1kB", 1000},
		{"4096", 4096},
	}
	for _, tt := range tests {
		var b ByteSize
		if err := b.UnmarshalText([]byte(tt.in)); err != nil {
			t.Errorf("UnmarshalText(%q) error: %v", tt.in, err)
			continue
		}
		if uint64(b) != tt.want {
			t.Errorf("UnmarshalText(%q) = %d, want %d", tt.in, b, tt.want)
		}
	}

	if got := ByteSize(2 << 20).String(); got != "2.0 MiB" {
		t.Errorf("String() = %q, want 2.0 MiB", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "repository", "notes")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"repository":"notes"`) {
		t.Errorf("json output missing attribute: %s", out)
	}
}
