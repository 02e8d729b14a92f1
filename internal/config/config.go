// Package config loads harborview settings from defaults, an optional YAML
// file, .env files and HARBORVIEW_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/rcourtman/harborview/internal/logging"
	"github.com/rcourtman/harborview/internal/utils"
)

const (
	// FileName is the YAML settings file looked up inside the data directory.
	FileName = "harborview.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HARBORVIEW_"
)

// Config holds runtime settings.
type Config struct {
	DataDir string `yaml:"-"`

	ListenAddress string `yaml:"listenAddress"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`

	PollInterval       time.Duration `yaml:"pollInterval"`
	FirstEventTimeout  time.Duration `yaml:"firstEventTimeout"`
	ProbeTimeout       time.Duration `yaml:"probeTimeout"`
	BaselineTimeout    time.Duration `yaml:"baselineTimeout"`
	RevalidateInterval time.Duration `yaml:"revalidateInterval"`
	MaxEventFailures   int           `yaml:"maxEventFailures"`
	BackoffBase        time.Duration `yaml:"backoffBase"`
	// BackoffMaxExponent caps respawn growth at base*2^n; it must be at least 1.
	BackoffMaxExponent int           `yaml:"backoffMaxExponent"`
	BackoffJitter      float64       `yaml:"backoffJitter"`

	ContextBinary    string   `yaml:"contextBinary"`
	IgnoreContainers []string `yaml:"ignoreContainers"`
	SkipEngineInfo   bool     `yaml:"skipEngineInfo"`
	AutoStart        bool     `yaml:"autoStart"`

	// EnvOverrides records which fields came from the environment.
	EnvOverrides map[string]bool `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ListenAddress:      "127.0.0.1:7655",
		LogLevel:           "info",
		LogFormat:          "auto",
		PollInterval:       5 * time.Second,
		FirstEventTimeout:  10 * time.Second,
		ProbeTimeout:       5 * time.Second,
		BaselineTimeout:    5 * time.Second,
		RevalidateInterval: 30 * time.Second,
		MaxEventFailures:   5,
		BackoffBase:        100 * time.Millisecond,
		BackoffMaxExponent: 6,
		ContextBinary:      "docker",
		AutoStart:          true,
		EnvOverrides:       make(map[string]bool),
	}
}

// DefaultDataDir is HARBORVIEW_DATA_DIR or the per-user config directory.
func DefaultDataDir() string {
	if dir := utils.GetenvTrim(EnvPrefix + "DATA_DIR"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "harborview")
	}
	return "."
}

// Load reads configuration rooted at dataDir. An empty dataDir uses DefaultDataDir.
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	cfg := Default()
	cfg.DataDir = dataDir

	if err := cfg.loadFile(filepath.Join(dataDir, FileName)); err != nil {
		return nil, err
	}

	cfg.applyEnv(lookupWithDotenv(dotenvFiles(dataDir)...))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Path is the YAML settings file for this configuration.
func (c *Config) Path() string {
	return filepath.Join(c.DataDir, FileName)
}

// EnvPath is the .env file inside the data directory.
func (c *Config) EnvPath() string {
	return filepath.Join(c.DataDir, ".env")
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Loaded configuration file")
	return nil
}

func dotenvFiles(dataDir string) []string {
	files := []string{filepath.Join(dataDir, ".env")}
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, ".env")
		if local != files[0] {
			files = append(files, local)
		}
	}
	return files
}

// lookupWithDotenv resolves a key from the process environment first, then
// from the given .env files in order. Earlier files win, matching godotenv.Load.
// The process environment itself is left untouched.
func lookupWithDotenv(files ...string) func(string) (string, bool) {
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("file", file).Msg("Failed to read .env file")
			}
			continue
		}
		for key, value := range values {
			if _, ok := merged[key]; !ok {
				merged[key] = value
			}
		}
		log.Debug().Str("file", file).Int("keys", len(values)).Msg("Loaded .env file")
	}

	return func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := merged[key]
		return value, ok
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(name string) (string, bool) {
		value, ok := lookup(EnvPrefix + name)
		value = strings.Trim(strings.TrimSpace(value), `'"`)
		return value, ok && value != ""
	}

	setString := func(name, field string, dst *string) {
		if value, ok := get(name); ok {
			*dst = value
			c.EnvOverrides[field] = true
		}
	}
	setDuration := func(name, field string, dst *time.Duration) {
		value, ok := get(name)
		if !ok {
			return
		}
		d, err := parseDuration(value)
		if err != nil {
			log.Warn().Str("var", EnvPrefix+name).Str("value", value).Msg("Ignoring invalid duration override")
			return
		}
		*dst = d
		c.EnvOverrides[field] = true
	}
	setInt := func(name, field string, dst *int) {
		value, ok := get(name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			log.Warn().Str("var", EnvPrefix+name).Str("value", value).Msg("Ignoring invalid integer override")
			return
		}
		*dst = n
		c.EnvOverrides[field] = true
	}
	setFloat := func(name, field string, dst *float64) {
		value, ok := get(name)
		if !ok {
			return
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Warn().Str("var", EnvPrefix+name).Str("value", value).Msg("Ignoring invalid number override")
			return
		}
		*dst = f
		c.EnvOverrides[field] = true
	}
	setBool := func(name, field string, dst *bool) {
		if value, ok := get(name); ok {
			*dst = utils.ParseBool(value)
			c.EnvOverrides[field] = true
		}
	}

	setString("LISTEN_ADDRESS", "listenAddress", &c.ListenAddress)
	setString("LOG_LEVEL", "logLevel", &c.LogLevel)
	setString("LOG_FORMAT", "logFormat", &c.LogFormat)
	setDuration("POLL_INTERVAL", "pollInterval", &c.PollInterval)
	setDuration("FIRST_EVENT_TIMEOUT", "firstEventTimeout", &c.FirstEventTimeout)
	setDuration("PROBE_TIMEOUT", "probeTimeout", &c.ProbeTimeout)
	setDuration("BASELINE_TIMEOUT", "baselineTimeout", &c.BaselineTimeout)
	setDuration("REVALIDATE_INTERVAL", "revalidateInterval", &c.RevalidateInterval)
	setInt("MAX_EVENT_FAILURES", "maxEventFailures", &c.MaxEventFailures)
	setDuration("BACKOFF_BASE", "backoffBase", &c.BackoffBase)
	setInt("BACKOFF_MAX_EXPONENT", "backoffMaxExponent", &c.BackoffMaxExponent)
	setFloat("BACKOFF_JITTER", "backoffJitter", &c.BackoffJitter)
	setString("CONTEXT_BINARY", "contextBinary", &c.ContextBinary)
	setBool("SKIP_ENGINE_INFO", "skipEngineInfo", &c.SkipEngineInfo)
	setBool("AUTO_START", "autoStart", &c.AutoStart)

	if value, ok := get("IGNORE_CONTAINERS"); ok {
		c.IgnoreContainers = utils.SplitList(value)
		c.EnvOverrides["ignoreContainers"] = true
	}

	for field := range c.EnvOverrides {
		log.Debug().Str("field", field).Msg("Setting overridden by environment")
	}
}

// parseDuration accepts Go duration strings or a bare number of seconds.
func parseDuration(value string) (time.Duration, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("listen address is required")
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("poll interval must be at least 100ms")
	}
	if c.FirstEventTimeout <= 0 {
		return fmt.Errorf("first event timeout must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.BaselineTimeout <= 0 {
		return fmt.Errorf("baseline timeout must be positive")
	}
	if c.RevalidateInterval < 0 {
		return fmt.Errorf("revalidate interval cannot be negative")
	}
	if c.MaxEventFailures < 1 {
		return fmt.Errorf("max event failures must be at least 1")
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff base must be positive")
	}
	if c.BackoffMaxExponent < 1 || c.BackoffMaxExponent > 16 {
		return fmt.Errorf("backoff max exponent must be between 1 and 16")
	}
	if c.BackoffJitter < 0 || c.BackoffJitter > 1 {
		return fmt.Errorf("backoff jitter must be between 0 and 1")
	}
	if strings.TrimSpace(c.ContextBinary) == "" {
		return fmt.Errorf("context binary is required")
	}
	return nil
}
