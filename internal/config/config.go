// ABOUTME: Configuration loading and parsing for the supportchat client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete supportchat client configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds backend endpoint configuration.
type ServerConfig struct {
	// APIBaseURL is the REST API root, e.g. "http://localhost:5019/api".
	APIBaseURL string `yaml:"api_base_url"`
	// HubURL is the push-channel endpoint, e.g. "ws://localhost:5019/hubs/conversations".
	HubURL string `yaml:"hub_url"`
}

// AuthConfig holds credential configuration.
type AuthConfig struct {
	// TokenPath overrides the default token file location.
	// The SUPPORTCHAT_TOKEN env var takes precedence over the file.
	TokenPath string `yaml:"token_path"`
}

// RealtimeConfig holds timing configuration for the realtime subsystem.
type RealtimeConfig struct {
	PollInterval      time.Duration `yaml:"-"`
	TypingExpiry      time.Duration `yaml:"-"`
	ReconnectWindow   time.Duration `yaml:"-"`
	ReconnectMaxDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PollIntervalRaw      string `yaml:"poll_interval"`
	TypingExpiryRaw      string `yaml:"typing_expiry"`
	ReconnectWindowRaw   string `yaml:"reconnect_window"`
	ReconnectMaxDelayRaw string `yaml:"reconnect_max_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding field is absent.
const (
	DefaultPollInterval      = 3 * time.Second
	DefaultTypingExpiry      = 1500 * time.Millisecond
	DefaultReconnectWindow   = 60 * time.Second
	DefaultReconnectMaxDelay = 10 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration fields,
// applying defaults for absent values.
func parseDurations(cfg *Config) error {
	parse := func(raw string, def time.Duration, name string) (time.Duration, error) {
		if raw == "" {
			return def, nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		return d, nil
	}

	var err error
	if cfg.Realtime.PollInterval, err = parse(cfg.Realtime.PollIntervalRaw, DefaultPollInterval, "realtime.poll_interval"); err != nil {
		return err
	}
	if cfg.Realtime.TypingExpiry, err = parse(cfg.Realtime.TypingExpiryRaw, DefaultTypingExpiry, "realtime.typing_expiry"); err != nil {
		return err
	}
	if cfg.Realtime.ReconnectWindow, err = parse(cfg.Realtime.ReconnectWindowRaw, DefaultReconnectWindow, "realtime.reconnect_window"); err != nil {
		return err
	}
	if cfg.Realtime.ReconnectMaxDelay, err = parse(cfg.Realtime.ReconnectMaxDelayRaw, DefaultReconnectMaxDelay, "realtime.reconnect_max_delay"); err != nil {
		return err
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.APIBaseURL == "" {
		return fmt.Errorf("server.api_base_url is required")
	}
	if c.Server.HubURL == "" {
		return fmt.Errorf("server.hub_url is required")
	}

	if c.Realtime.PollInterval <= 0 {
		return fmt.Errorf("realtime.poll_interval must be positive")
	}
	if c.Realtime.TypingExpiry <= 0 {
		return fmt.Errorf("realtime.typing_expiry must be positive")
	}
	if c.Realtime.ReconnectMaxDelay <= 0 {
		return fmt.Errorf("realtime.reconnect_max_delay must be positive")
	}
	if c.Realtime.ReconnectWindow < c.Realtime.ReconnectMaxDelay {
		return fmt.Errorf("realtime.reconnect_window must be at least realtime.reconnect_max_delay")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}
