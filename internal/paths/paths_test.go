package paths

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeResolver(goos string, env map[string]string) Resolver {
	return Resolver{
		GOOS:    goos,
		Getenv:  func(k string) string { return env[k] },
		HomeDir: func() (string, error) { return "/home/tester", nil },
	}
}

func TestConfigDirPerPlatform(t *testing.T) {
	tests := []struct {
		name string
		goos string
		env  map[string]string
		want string
	}{
		{"linux default", "linux", nil, filepath.Join("/home/tester", ".config", "debrief")},
		{"linux xdg", "linux", map[string]string{"XDG_CONFIG_HOME": "/xdg"}, filepath.Join("/xdg", "debrief")},
		{"darwin", "darwin", map[string]string{"XDG_CONFIG_HOME": "/ignored"}, filepath.Join("/home/tester", "Library", "Application Support", "debrief")},
		{"windows appdata", "windows", map[string]string{"APPDATA": "/appdata"}, filepath.Join("/appdata", "debrief")},
		{"windows fallback", "windows", nil, filepath.Join("/home/tester", "AppData", "Roaming", "debrief")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fakeResolver(tt.goos, tt.env).ConfigDir()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigDirHomeError(t *testing.T) {
	r := Resolver{
		GOOS:    "linux",
		Getenv:  func(string) string { return "" },
		HomeDir: func() (string, error) { return "", errors.New("no home") },
	}
	_, err := r.ConfigDir()
	assert.Error(t, err)
}

func TestEnsureConfigDirHonoursXDG(t *testing.T) {
	if Default().GOOS == "darwin" || Default().GOOS == "windows" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux/Unix")
	}
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", root)

	dir, err := EnsureConfigDir()
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(root, "debrief"), dir)

	file, err := ConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "debrief", "config.json"), file)
}

func TestStateFilesShareConfigDir(t *testing.T) {
	if Default().GOOS == "darwin" || Default().GOOS == "windows" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux/Unix")
	}
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", root)
	dir := filepath.Join(root, "debrief")

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"pending", PendingOpsFile, "pending-operations.json"},
		{"recent", RecentDB, "recent.db"},
		{"services", ServicesFile, "services.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), got)
		})
	}
}
