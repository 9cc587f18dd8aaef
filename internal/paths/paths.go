// Package paths resolves where debrief keeps its per-user state.
//
// The layout matches the Python platformdirs conventions used by the other
// debrief tools, so every implementation finds the same config.json:
//
//   - Linux/Unix: $XDG_CONFIG_HOME/debrief, else ~/.config/debrief
//   - macOS:      ~/Library/Application Support/debrief
//   - Windows:    %APPDATA%\debrief, else ~/AppData/Roaming/debrief
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	AppName            = "debrief"
	ConfigFilename     = "config.json"
	PendingOpsFilename = "pending-operations.json"
	RecentDBFilename   = "recent.db"
	ServicesFilename   = "services.yaml"
)

// Resolver computes platform paths from an explicit environment. The zero
// value is not usable; use Default or construct one in tests.
type Resolver struct {
	GOOS    string
	Getenv  func(string) string
	HomeDir func() (string, error)
}

// Default resolves against the running process.
func Default() Resolver {
	return Resolver{GOOS: runtime.GOOS, Getenv: os.Getenv, HomeDir: os.UserHomeDir}
}

// ConfigDir returns the platform configuration directory without creating it.
func (r Resolver) ConfigDir() (string, error) {
	home, err := r.HomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}

	switch r.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppName), nil
	case "windows":
		appData := r.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, AppName), nil
	default:
		base := r.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppName), nil
	}
}

// ConfigDir returns the configuration directory for the current platform.
func ConfigDir() (string, error) {
	return Default().ConfigDir()
}

// EnsureConfigDir returns the configuration directory, creating it if needed.
func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ConfigFile returns the path to config.json.
func ConfigFile() (string, error) {
	return inConfigDir(ConfigFilename)
}

// PendingOpsFile returns the path to the pending operations journal.
func PendingOpsFile() (string, error) {
	return inConfigDir(PendingOpsFilename)
}

// RecentDB returns the path to the recent plots database.
func RecentDB() (string, error) {
	return inConfigDir(RecentDBFilename)
}

// ServicesFile returns the path to the service launch settings.
func ServicesFile() (string, error) {
	return inConfigDir(ServicesFilename)
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
