// Package paths resolves where dockstrap looks for its user-level config file.
package paths

import (
	"path/filepath"
	"runtime"
)

// ConfigFileName is the name of the optional user config file.
const ConfigFileName = "dockstrap.yaml"

// Env is the interface for environment variable lookups.
// Implementations must return "" for unset variables.
type Env interface {
	Get(key string) string
}

// IsDarwin returns true if the current OS is macOS.
func IsDarwin() bool {
	return runtime.GOOS == "darwin"
}

// ConfigDir resolves the dockstrap config directory.
//
// Resolution order:
//  1. DOCKSTRAP_CONFIG_DIR env var (if set)
//  2. macOS: ~/Library/Preferences/dockstrap
//  3. XDG_CONFIG_HOME/dockstrap (if set)
//  4. ~/.config/dockstrap
//
// Does not touch the filesystem. ~ inside env vars is treated as literal.
func ConfigDir(env Env, homeDir string) string {
	return ConfigDirWithOS(env, homeDir, IsDarwin())
}

// ConfigDirWithOS is like ConfigDir but accepts an explicit OS flag for testing.
func ConfigDirWithOS(env Env, homeDir string, isDarwin bool) string {
	if v := env.Get("DOCKSTRAP_CONFIG_DIR"); v != "" {
		return v
	}
	if isDarwin {
		return filepath.Join(homeDir, "Library", "Preferences", "dockstrap")
	}
	if v := env.Get("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "dockstrap")
	}
	return filepath.Join(homeDir, ".config", "dockstrap")
}

// DefaultConfigFile returns the path of the user config file.
// The file is optional; callers check for existence.
func DefaultConfigFile(env Env, homeDir string) string {
	return filepath.Join(ConfigDir(env, homeDir), ConfigFileName)
}
