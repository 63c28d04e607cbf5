package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "VDB_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "vdb.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "vdb"
)

// FindConfigPath searches for config file in priority order:
// 1. $VDB_CONFIG (explicit path)
// 2. ./vdb.yaml (working directory)
// 3. $XDG_CONFIG_HOME/vdb/config.yaml
// 4. ~/.config/vdb/config.yaml
// 5. /etc/vdb/config.yaml
//
// Returns empty string if no config file found
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		if fileExists(path) {
			return path
		}
	}

	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	for _, dir := range searchDirs() {
		path := filepath.Join(dir, ConfigDirName, "config.yaml")
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// searchDirs lists the config roots below the working directory, most specific first
func searchDirs() []string {
	var dirs []string
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		dirs = append(dirs, xdgHome)
	}
	if home := os.Getenv("HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config"))
	}
	return append(dirs, "/etc")
}

// DefaultConfigPath returns the preferred location for a new config file
func DefaultConfigPath() string {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, ConfigDirName, "config.yaml")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
