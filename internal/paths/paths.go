// Package paths resolves the configuration directory and the default
// database location of the fixtures CLI.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultConfigDirName is the CWD-relative configuration directory.
const DefaultConfigDirName = ".fixtures"

// DefaultDatabaseName is the SQLite file used when no DSN is configured.
const DefaultDatabaseName = "fixtures.db"

// Environment variable overrides.
const (
	EnvConfigDir = "FIXTURES_CONFIG_DIR"
	EnvDSN       = "FIXTURES_DSN"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultDataDir returns the platform-specific directory holding the default
// database.
//
// Linux:   $XDG_DATA_HOME/fixtures (fallback ~/.local/share/fixtures)
// macOS:   ~/Library/Application Support/fixtures
// Windows: %APPDATA%/fixtures
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "fixtures"), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "fixtures"), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fixtures"), nil
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > FIXTURES_CONFIG_DIR env > $(CWD)/.fixtures.
// The result is absolute.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultConfigDirName), nil
}

// ResolveDSN returns the data source name following the precedence chain:
// flag > configYAMLValue > FIXTURES_DSN env > a SQLite file in
// DefaultDataDir(). DSNs are returned as given.
func ResolveDSN(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if configYAMLValue != "" {
		return configYAMLValue, nil
	}
	if env := os.Getenv(EnvDSN); env != "" {
		return env, nil
	}
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultDatabaseName), nil
}
