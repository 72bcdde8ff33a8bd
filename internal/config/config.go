// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/shsh-chat/internal/chat"
	"github.com/ashureev/shsh-chat/internal/simulator"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/ashureev/shsh-chat/internal/transport"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Port                string          `yaml:"port"`
	FrontendURL         string          `yaml:"frontend_url"`
	Transport           TransportConfig `yaml:"transport"`
	Replies             ReplyConfig     `yaml:"replies"`
	StoreBackend        string          `yaml:"store_backend"`
	Session             SessionConfig   `yaml:"session"`
	RateLimit           RateLimitConfig `yaml:"rate_limit"`
	EchoEndpointEnabled bool            `yaml:"echo_endpoint_enabled"`
	LogLevel            string          `yaml:"log_level"`
}

// TransportConfig selects how sessions connect.
type TransportConfig struct {
	Mode        string        `yaml:"mode"` // simulated, live or auto
	LiveURL     string        `yaml:"live_url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ReplyConfig controls the simulated reply window.
type ReplyConfig struct {
	MinDelay                  time.Duration `yaml:"min_delay"`
	MaxDelay                  time.Duration `yaml:"max_delay"`
	CancelPendingOnDisconnect bool          `yaml:"cancel_pending_on_disconnect"`
}

// SessionConfig controls idle-session reaping.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig bounds sends per session.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port: "8080",
		Transport: TransportConfig{
			Mode:        string(transport.ModeSimulated),
			DialTimeout: 10 * time.Second,
		},
		Replies: ReplyConfig{
			MinDelay:                  simulator.DefaultMinDelay,
			MaxDelay:                  simulator.DefaultMaxDelay,
			CancelPendingOnDisconnect: true,
		},
		StoreBackend: store.BackendMemory,
		Session: SessionConfig{
			TTL:           60 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		EchoEndpointEnabled: true,
		LogLevel:            "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CHAT_CONFIG_FILE, and then environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("CHAT_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.Transport.Mode = getEnv("TRANSPORT_MODE", c.Transport.Mode)
	c.Transport.LiveURL = getEnv("LIVE_URL", c.Transport.LiveURL)
	c.Transport.DialTimeout = getEnvDuration("DIAL_TIMEOUT", c.Transport.DialTimeout)
	c.Replies.MinDelay = getEnvDuration("REPLY_MIN_DELAY", c.Replies.MinDelay)
	c.Replies.MaxDelay = getEnvDuration("REPLY_MAX_DELAY", c.Replies.MaxDelay)
	c.Replies.CancelPendingOnDisconnect = getEnvBool("CANCEL_PENDING_ON_DISCONNECT", c.Replies.CancelPendingOnDisconnect)
	c.StoreBackend = getEnv("STORE_BACKEND", c.StoreBackend)
	c.Session.TTL = getEnvDuration("SESSION_TTL", c.Session.TTL)
	c.Session.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", c.Session.SweepInterval)
	c.RateLimit.RPS = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst)
	c.EchoEndpointEnabled = getEnvBool("ECHO_ENDPOINT_ENABLED", c.EchoEndpointEnabled)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks that all required configuration fields are set and
// consistent. It normalizes the transport mode.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	mode, err := transport.ParseMode(c.Transport.Mode)
	if err != nil {
		return fmt.Errorf("TRANSPORT_MODE: %w", err)
	}
	c.Transport.Mode = string(mode)
	if mode != transport.ModeSimulated && c.Transport.LiveURL == "" {
		return fmt.Errorf("LIVE_URL is required when TRANSPORT_MODE is %s", mode)
	}
	if c.Transport.DialTimeout <= 0 {
		return fmt.Errorf("DIAL_TIMEOUT must be > 0")
	}

	if c.Replies.MinDelay < 0 {
		return fmt.Errorf("REPLY_MIN_DELAY must be >= 0")
	}
	if c.Replies.MaxDelay <= c.Replies.MinDelay {
		return fmt.Errorf("REPLY_MAX_DELAY must be greater than REPLY_MIN_DELAY")
	}

	switch c.StoreBackend {
	case store.BackendMemory, store.BackendSQLite:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q", store.BackendMemory, store.BackendSQLite)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// ChatConfig returns the per-session manager configuration.
func (c *Config) ChatConfig() chat.Config {
	mode, _ := transport.ParseMode(c.Transport.Mode)
	return chat.Config{
		Mode:        mode,
		LiveURL:     c.Transport.LiveURL,
		DialTimeout: c.Transport.DialTimeout,
		Replies: simulator.Config{
			MinDelay: c.Replies.MinDelay,
			MaxDelay: c.Replies.MaxDelay,
		},
		CancelPendingOnDisconnect: c.Replies.CancelPendingOnDisconnect,
	}
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("750ms") or whole seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
