package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"

	defaultJWTSecret = "change-me-in-production"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=console json"`

	// CORS origin of the web client; empty allows any origin.
	FrontendURL string `mapstructure:"frontend_url" yaml:"frontend_url"`
	// Directory with the built web client served on unknown routes.
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`

	StoreDriver  string `mapstructure:"store_driver" yaml:"store_driver" validate:"oneof=sqlite badger"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl" validate:"gt=0"`
	JWTRequired bool          `mapstructure:"jwt_required" yaml:"jwt_required"`

	MaxMessageBytes   int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gt=0"`
	MessagesPerMinute int   `mapstructure:"messages_per_minute" yaml:"messages_per_minute" validate:"gte=0"`

	RetryAttempts        int           `mapstructure:"retry_attempts" yaml:"retry_attempts" validate:"gte=1"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		LogLevel:             "info",
		LogFormat:            "console",
		StoreDriver:          StoreSQLite,
		DatabasePath:         "duochat.db",
		JWTSecret:            defaultJWTSecret,
		JWTIssuer:            "duochat",
		JWTAudience:          "duochat-clients",
		JWTTTL:               24 * time.Hour,
		MaxMessageBytes:      64 << 10,
		MessagesPerMinute:    120,
		RetryAttempts:        3,
		RetryInitialInterval: 50 * time.Millisecond,
		RetryMaxInterval:     time.Second,
	}
}

// HasDefaultSecret reports whether the JWT secret was left at its default.
func (c *Config) HasDefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}

// Validate checks value constraints after loading.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.FrontendURL != "" {
		c.FrontendURL = other.FrontendURL
	}
	if other.StaticDir != "" {
		c.StaticDir = other.StaticDir
	}
	if other.StoreDriver != "" {
		c.StoreDriver = other.StoreDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTRequired {
		c.JWTRequired = true
	}
	if other.MessagesPerMinute != 0 {
		c.MessagesPerMinute = other.MessagesPerMinute
	}
}
