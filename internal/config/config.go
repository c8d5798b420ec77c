// Package config loads service configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no explicit path is given. It may be absent.
const DefaultPath = "config.yaml"

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Quota    QuotaConfig    `yaml:"quota"`
	Images   ImagesConfig   `yaml:"images"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// GeminiConfig selects the model and how it is reached.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// Transport is "sdk" or "rest".
	Transport string        `yaml:"transport"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DatabaseConfig points at the PostgreSQL database.
type DatabaseConfig struct {
	URL         string `yaml:"url"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// AuthConfig holds the token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

// QuotaConfig bounds daily generations per user.
type QuotaConfig struct {
	DailyLimit int `yaml:"daily_limit"`
	// Backend is "store" or "redis".
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
}

// ImagesConfig limits the uploaded images.
type ImagesConfig struct {
	MaxCount int `yaml:"max_count"`
	MaxWidth int `yaml:"max_width"`
	// MaxPixels caps width*height of an image the resizer will decode.
	MaxPixels int `yaml:"max_pixels"`
}

// ArchiveConfig selects where uploaded images are copied.
type ArchiveConfig struct {
	// Backend is "", "file" or "s3".
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Region  string `yaml:"region"`
}

// LogConfig controls logrus output and file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Error reports a missing or invalid setting. The service cannot start.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// Default returns a Config with every optional field populated.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", ReadHeaderTimeout: 10 * time.Second, ShutdownTimeout: 15 * time.Second},
		Gemini: GeminiConfig{Model: "gemini-2.5-flash", Transport: "sdk", Timeout: 60 * time.Second},
		Quota:  QuotaConfig{DailyLimit: 3, Backend: "store"},
		Images: ImagesConfig{MaxCount: 5, MaxWidth: 1024, MaxPixels: 40_000_000},
		Archive: ArchiveConfig{
			Dir: "images",
		},
		Log: LogConfig{Level: "info", Format: "text", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load reads path (DefaultPath when empty), applies environment overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if errYAML := yaml.Unmarshal(data, &cfg); errYAML != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, errYAML)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("GEMINI_API_KEY", &cfg.Gemini.APIKey)
	str("GEMINI_MODEL", &cfg.Gemini.Model)
	str("DATABASE_URL", &cfg.Database.URL)
	str("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("REDIS_URL", &cfg.Quota.RedisURL)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		if _, err := strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return &Error{Problems: []string{fmt.Sprintf("PORT %q is not a number", v)}}
		}
		cfg.Server.Addr = ":" + strings.TrimSpace(v)
	}
	if v, ok := lookup("QUOTA_DAILY_LIMIT"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Problems: []string{fmt.Sprintf("QUOTA_DAILY_LIMIT %q is not a number", v)}}
		}
		cfg.Quota.DailyLimit = n
	}
	return nil
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	var problems []string
	if c.Gemini.APIKey == "" {
		problems = append(problems, "gemini api key is required (GEMINI_API_KEY)")
	}
	if c.Database.URL == "" {
		problems = append(problems, "database url is required (DATABASE_URL)")
	}
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "jwt secret is required (AUTH_JWT_SECRET)")
	}
	switch c.Gemini.Transport {
	case "sdk", "rest":
	default:
		problems = append(problems, fmt.Sprintf("unknown gemini transport %q", c.Gemini.Transport))
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		problems = append(problems, "server read header timeout must be positive")
	}
	if c.Images.MaxPixels <= 0 {
		problems = append(problems, "images max pixels must be positive")
	}
	if c.Quota.DailyLimit <= 0 {
		problems = append(problems, "quota daily limit must be positive")
	}
	switch c.Quota.Backend {
	case "store":
	case "redis":
		if c.Quota.RedisURL == "" {
			problems = append(problems, "redis url is required for the redis quota backend (REDIS_URL)")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown quota backend %q", c.Quota.Backend))
	}
	switch c.Archive.Backend {
	case "", "file":
	case "s3":
		if c.Archive.Bucket == "" {
			problems = append(problems, "archive bucket is required for the s3 backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown archive backend %q", c.Archive.Backend))
	}
	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}
