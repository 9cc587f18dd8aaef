package config

import (
	"os"
	"sort"
	"time"
)

// Service names as installed on PATH.
const (
	IOServiceName   = "debrief-io"
	STACServiceName = "debrief-stac"
)

// ServicesConfig configures the external debrief services.
type ServicesConfig struct {
	// Stateless parser, spawned once per file
	IO ServiceConfig `yaml:"io"`

	// Store service, kept running across requests
	STAC ServiceConfig `yaml:"stac"`
}

// ServiceConfig describes how to launch one service.
type ServiceConfig struct {
	Name         string   `yaml:"name"`
	Path         string   `yaml:"path"`          // executable; empty means look up Name on PATH
	Args         []string `yaml:"args"`
	Timeout      string   `yaml:"timeout"`       // per request
	ReadyTimeout string   `yaml:"ready_timeout"` // startup readiness check
	ReadyMethod  string   `yaml:"ready_method"`  // empty disables the readiness check

	// Extra environment for the service process, on top of debrief's own
	Env map[string]string `yaml:"env,omitempty"`
}

// Environ returns the process environment for the service: the current
// environment plus Env. It returns nil when Env is empty, which makes the
// child inherit the environment unchanged.
func (s ServiceConfig) Environ() []string {
	if len(s.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

// Executable resolves the command to run. The <NAME>_PATH environment
// variable wins over the configured path, which wins over the bare name.
func (s ServiceConfig) Executable() string {
	if p := os.Getenv(EnvKey(s.Name)); p != "" {
		return p
	}
	if s.Path != "" {
		return s.Path
	}
	return s.Name
}

// GetTimeout returns the request timeout as a duration.
func (s ServiceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetReadyTimeout returns the startup readiness timeout as a duration.
func (s ServiceConfig) GetReadyTimeout() time.Duration {
	d, err := time.ParseDuration(s.ReadyTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}
