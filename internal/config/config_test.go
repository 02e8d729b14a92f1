package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "127.0.0.1:7655", cfg.ListenAddress)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.FirstEventTimeout)
	assert.Equal(t, 5, cfg.MaxEventFailures)
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 6, cfg.BackoffMaxExponent)
	assert.Equal(t, "docker", cfg.ContextBinary)
	assert.True(t, cfg.AutoStart)
	assert.Empty(t, cfg.EnvOverrides)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
listenAddress: 127.0.0.1:9000
logLevel: debug
pollInterval: 2s
firstEventTimeout: 3s
ignoreContainers:
  - k8s_*
  - buildx_buildkit_*
autoStart: false
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.FirstEventTimeout)
	assert.Equal(t, []string{"k8s_*", "buildx_buildkit_*"}, cfg.IgnoreContainers)
	assert.False(t, cfg.AutoStart)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "pollInterval: [oops")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsZeroBackoffExponent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "backoffMaxExponent: 0\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff max exponent")
}

func TestPrecedenceEnvOverDotenvOverYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "logLevel: warn\npollInterval: 2s\nprobeTimeout: 7s\n")
	writeFile(t, filepath.Join(dir, ".env"), "HARBORVIEW_LOG_LEVEL=error\nHARBORVIEW_POLL_INTERVAL=3\n")
	t.Setenv("HARBORVIEW_POLL_INTERVAL", "4s")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel, ".env beats YAML")
	assert.Equal(t, 4*time.Second, cfg.PollInterval, "environment beats .env")
	assert.Equal(t, 7*time.Second, cfg.ProbeTimeout, "YAML beats defaults")
	assert.True(t, cfg.EnvOverrides["logLevel"])
	assert.True(t, cfg.EnvOverrides["pollInterval"])
	assert.False(t, cfg.EnvOverrides["probeTimeout"])

	_, leaked := os.LookupEnv("HARBORVIEW_LOG_LEVEL")
	assert.False(t, leaked, ".env values must not leak into the process environment")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HARBORVIEW_IGNORE_CONTAINERS", "k8s_*, ,tmp-*")
	t.Setenv("HARBORVIEW_AUTO_START", "no")
	t.Setenv("HARBORVIEW_MAX_EVENT_FAILURES", "8")
	t.Setenv("HARBORVIEW_BACKOFF_BASE", "250ms")
	t.Setenv("HARBORVIEW_CONTEXT_BINARY", "'podman'")
	t.Setenv("HARBORVIEW_FIRST_EVENT_TIMEOUT", "not-a-duration")
	t.Setenv("HARBORVIEW_BACKOFF_JITTER", "0.25")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"k8s_*", "tmp-*"}, cfg.IgnoreContainers)
	assert.False(t, cfg.AutoStart)
	assert.Equal(t, 8, cfg.MaxEventFailures)
	assert.Equal(t, 250*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, "podman", cfg.ContextBinary)
	assert.Equal(t, 10*time.Second, cfg.FirstEventTimeout, "invalid override ignored")
	assert.Equal(t, 0.25, cfg.BackoffJitter)
}

func TestDefaultDataDirFromEnv(t *testing.T) {
	t.Setenv("HARBORVIEW_DATA_DIR", "/srv/harborview")
	assert.Equal(t, "/srv/harborview", DefaultDataDir())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5s", 5 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"2", 2 * time.Second, false},
		{"0.5", 500 * time.Millisecond, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen address", func(c *Config) { c.ListenAddress = " " }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"poll too fast", func(c *Config) { c.PollInterval = time.Millisecond }},
		{"zero first event timeout", func(c *Config) { c.FirstEventTimeout = 0 }},
		{"zero probe timeout", func(c *Config) { c.ProbeTimeout = 0 }},
		{"zero baseline timeout", func(c *Config) { c.BaselineTimeout = 0 }},
		{"negative revalidate", func(c *Config) { c.RevalidateInterval = -time.Second }},
		{"no failures allowed", func(c *Config) { c.MaxEventFailures = 0 }},
		{"zero backoff", func(c *Config) { c.BackoffBase = 0 }},
		{"huge exponent", func(c *Config) { c.BackoffMaxExponent = 40 }},
		{"zero exponent", func(c *Config) { c.BackoffMaxExponent = 0 }},
		{"negative jitter", func(c *Config) { c.BackoffJitter = -0.1 }},
		{"jitter above one", func(c *Config) { c.BackoffJitter = 1.5 }},
		{"no binary", func(c *Config) { c.ContextBinary = "" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
