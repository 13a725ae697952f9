// Package config loads process configuration and builds the logger.
//
// Values come from (highest priority first): environment variables, an
// optional config file, then the defaults below. Keys are the same in all
// three places, e.g. REDIS_URL in the environment or REDIS_URL: in YAML.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the server and habitctl read.
type Config struct {
	Port         int           `mapstructure:"PORT"`
	StoreBackend string        `mapstructure:"STORE_BACKEND"`
	RedisURL     string        `mapstructure:"REDIS_URL"`
	DBPath       string        `mapstructure:"DB_PATH"`
	StoreTimeout time.Duration `mapstructure:"STORE_TIMEOUT"`

	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `mapstructure:"GOOGLE_CALLBACK_URL"`

	AdminEmail  string `mapstructure:"ADMIN_EMAIL"`
	ResetAPIKey string `mapstructure:"RESET_API_KEY"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

var defaults = map[string]any{
	"PORT":                 8080,
	"STORE_BACKEND":        "auto",
	"REDIS_URL":            "",
	"DB_PATH":              "",
	"STORE_TIMEOUT":        5 * time.Second,
	"JWT_SECRET":           "",
	"SESSION_TTL":          24 * time.Hour,
	"GOOGLE_CLIENT_ID":     "",
	"GOOGLE_CLIENT_SECRET": "",
	"GOOGLE_CALLBACK_URL":  "",
	"ADMIN_EMAIL":          "",
	"RESET_API_KEY":        "",
	"LOG_LEVEL":            "debug",
	"LOG_FILE":             "",
}

// Load reads configuration. When path is empty, a habits.yaml in the working
// directory or ./config is used if present; a missing file is not an error.
// An explicit path that cannot be read is.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else {
		v.SetConfigName("habits")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	switch c.StoreBackend {
	case "auto", "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("config: invalid STORE_BACKEND %q", c.StoreBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	return nil
}

// AuthEnabled reports whether session signing is configured.
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }

// GoogleEnabled reports whether the Google login flow can run.
func (c *Config) GoogleEnabled() bool {
	return c.AuthEnabled() && c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
