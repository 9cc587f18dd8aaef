package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "DEBRIEF_STAC_PATH", EnvKey("debrief-stac"))
	assert.Equal(t, "DEBRIEF_IO_PATH", EnvKey("debrief-io"))
	assert.Equal(t, "CUSTOM_PATH", EnvKey("custom"))
}

func TestEnvOverrides_ServicePaths(t *testing.T) {
	t.Run("DEBRIEF_STAC_PATH overrides configured path", func(t *testing.T) {
		t.Setenv("DEBRIEF_STAC_PATH", "/env/debrief-stac")
		t.Setenv("DEBRIEF_IO_PATH", "")

		cfg := DefaultConfig()
		cfg.Services.STAC.Path = "/yaml/debrief-stac"
		cfg.applyEnvOverrides()

		assert.Equal(t, "/env/debrief-stac", cfg.Services.STAC.Path)
		assert.Equal(t, "", cfg.Services.IO.Path)
	})

	t.Run("Empty variable keeps configured path", func(t *testing.T) {
		t.Setenv("DEBRIEF_IO_PATH", "")

		cfg := DefaultConfig()
		cfg.Services.IO.Path = "/yaml/debrief-io"
		cfg.applyEnvOverrides()

		assert.Equal(t, "/yaml/debrief-io", cfg.Services.IO.Path)
	})
}

func TestServiceConfig_ExecutablePrecedence(t *testing.T) {
	svc := ServiceConfig{Name: "debrief-io"}

	t.Run("Bare name", func(t *testing.T) {
		t.Setenv("DEBRIEF_IO_PATH", "")
		assert.Equal(t, "debrief-io", svc.Executable())
	})

	t.Run("Configured path", func(t *testing.T) {
		t.Setenv("DEBRIEF_IO_PATH", "")
		withPath := svc
		withPath.Path = "/opt/debrief-io"
		assert.Equal(t, "/opt/debrief-io", withPath.Executable())
	})

	t.Run("Environment wins", func(t *testing.T) {
		t.Setenv("DEBRIEF_IO_PATH", "/env/debrief-io")
		withPath := svc
		withPath.Path = "/opt/debrief-io"
		assert.Equal(t, "/env/debrief-io", withPath.Executable())
	})
}

func TestEnvOverrides_Logging(t *testing.T) {
	t.Setenv("DEBRIEF_LOG_LEVEL", "debug")
	t.Setenv("DEBRIEF_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}
