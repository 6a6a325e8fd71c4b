// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidConfig is returned when a value is outside its allowed range.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrKeyFileRequired is returned when CREDENTIAL_SELECTION=file without CREDENTIAL_KEY_FILE.
	ErrKeyFileRequired = errors.New("config: CREDENTIAL_KEY_FILE is required when CREDENTIAL_SELECTION=file")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Credential selection flows.
const (
	SelectionNone    = "none"
	SelectionFile    = "file"
	SelectionRequest = "request"
	SelectionDialog  = "dialog"
)

// Values of ASSUME_CREDENTIAL_USABLE.
const (
	AssumeUsableAuto  = "auto"
	AssumeUsableTrue  = "true"
	AssumeUsableFalse = "false"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port               int      `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Gemini settings
	GeminiAPIKey  string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	GeminiBaseURL string `env:"GEMINI_BASE_URL" json:"gemini_base_url,omitempty" validate:"omitempty,url"`
	ImageModel    string `env:"IMAGE_MODEL, default=imagen-4.0-generate-001" json:"image_model" validate:"required"`
	VideoModel    string `env:"VIDEO_MODEL, default=veo-3.1-fast-generate-preview" json:"video_model" validate:"required"`

	// Credential settings
	// AssumeCredentialUsable is the gate fallback when no selection flow exists.
	// "auto" means usable when GEMINI_API_KEY is set.
	AssumeCredentialUsable string `env:"ASSUME_CREDENTIAL_USABLE, default=auto" json:"assume_credential_usable" validate:"oneof=auto true false AUTO TRUE FALSE"`
	CredentialSelection    string `env:"CREDENTIAL_SELECTION, default=none" json:"credential_selection" validate:"oneof=none file request dialog"`
	CredentialKeyFile      string `env:"CREDENTIAL_KEY_FILE" json:"credential_key_file,omitempty"`

	// Generation settings
	PollInterval    time.Duration `env:"POLL_INTERVAL, default=10s" json:"poll_interval" validate:"gt=0"`
	MaxVideoWait    time.Duration `env:"MAX_VIDEO_WAIT, default=0s" json:"max_video_wait" validate:"gte=0"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT, default=5m" json:"download_timeout" validate:"gt=0"`

	// Session settings
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL, default=1h" json:"session_idle_ttl" validate:"gte=0"` // 0 keeps sessions forever

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/genstudio" json:"temp_dir" validate:"required"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=generations" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json TEXT JSON"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                                        // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// CredentialUsableByDefault reports the gate fallback used when no selection
// flow is configured.
func (c *Config) CredentialUsableByDefault() bool {
	switch strings.ToLower(c.AssumeCredentialUsable) {
	case AssumeUsableTrue:
		return true
	case AssumeUsableFalse:
		return false
	default:
		return strings.TrimSpace(c.GeminiAPIKey) != ""
	}
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.CredentialSelection == SelectionFile && c.CredentialKeyFile == "" {
		return ErrKeyFileRequired
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, GeminiAPIKey: %s, GeminiBaseURL: %s, ImageModel: %s, VideoModel: %s, CredentialSelection: %s, PollInterval: %s, MaxVideoWait: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		mask(c.GeminiAPIKey),
		c.GeminiBaseURL,
		c.ImageModel,
		c.VideoModel,
		c.CredentialSelection,
		c.PollInterval,
		c.MaxVideoWait,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "****"
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
