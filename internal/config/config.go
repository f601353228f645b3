package config

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. The config file is
// optional: every field has a working default and the important ones can
// be overridden by CLI flags.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	TokenCache TokenCacheConfig `yaml:"token_cache"`
	Log        LogConfig        `yaml:"log"`
}

// DeviceConfig contains device connection settings.
type DeviceConfig struct {
	Host    string   `yaml:"host"`
	Timeout Duration `yaml:"timeout"` // HTTP timeout for control API requests
}

// RealtimeConfig contains UDP frame streaming settings.
type RealtimeConfig struct {
	WriteDeadline Duration `yaml:"write_deadline"` // Per-datagram send deadline (0 = none)
	FPS           float64  `yaml:"fps"`            // Default animation frame rate
}

// TokenCacheConfig contains token persistence settings.
type TokenCacheConfig struct {
	Disable bool   `yaml:"disable"`
	Path    string `yaml:"path"` // Empty = default location under the user cache dir
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
}

// GetLevel returns the log level with default.
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(30 * time.Second)
	}
	if cfg.Realtime.WriteDeadline == 0 {
		cfg.Realtime.WriteDeadline = Duration(1 * time.Second)
	}
	if cfg.Realtime.FPS == 0 {
		cfg.Realtime.FPS = 10.0
	}
	if cfg.TokenCache.Path == "" {
		cfg.TokenCache.Path = defaultTokenCachePath()
	}
}

func defaultTokenCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "./xledctl-tokens.sqlite"
	}
	return filepath.Join(dir, "xledctl", "tokens.sqlite")
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
