package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Server
	Port          string `env:"PORT" envDefault:"8080"`
	Env           string `env:"ENV" envDefault:"development"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:""`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"citytours"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"password"`
	DBName     string `env:"DB_NAME" envDefault:"citytours"`
	DBSSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// JWT
	JWTSecret string `env:"JWT_SECRET" envDefault:"your-secret-key"`

	// Media library
	UploadDir             string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MediaMaxDimension     int    `env:"MEDIA_MAX_DIMENSION" envDefault:"2048"`
	MediaQuality          int    `env:"MEDIA_QUALITY" envDefault:"85"`
	MediaThumbnailSize    int    `env:"MEDIA_THUMBNAIL_SIZE" envDefault:"300"`
	MediaThumbnailQuality int    `env:"MEDIA_THUMBNAIL_QUALITY" envDefault:"70"`
	MediaUserQuotaBytes   int64  `env:"MEDIA_USER_QUOTA_BYTES" envDefault:"524288000"`
	MediaMaxFiles         int    `env:"MEDIA_MAX_FILES" envDefault:"10"`
	MediaMaxFileBytes     int64  `env:"MEDIA_MAX_FILE_BYTES" envDefault:"10485760"`
	MediaUploadsPerDay    int    `env:"MEDIA_UPLOADS_PER_DAY" envDefault:"200"`

	// Optional S3 mirror for stored media (disabled when bucket is empty)
	MediaS3Endpoint        string `env:"MEDIA_S3_ENDPOINT" envDefault:""`
	MediaS3Region          string `env:"MEDIA_S3_REGION" envDefault:"us-east-1"`
	MediaS3AccessKeyID     string `env:"MEDIA_S3_ACCESS_KEY_ID" envDefault:""`
	MediaS3SecretAccessKey string `env:"MEDIA_S3_SECRET_ACCESS_KEY" envDefault:""`
	MediaS3UsePathStyle    bool   `env:"MEDIA_S3_USE_PATH_STYLE" envDefault:"true"`
	MediaS3Bucket          string `env:"MEDIA_S3_BUCKET" envDefault:""`

	// Security
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitDuration time.Duration `env:"RATE_LIMIT_DURATION" envDefault:"1m"`

	// CORS
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// New parses the environment into a Config and validates it.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the media pipeline cannot work with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.MediaMaxDimension <= 0 {
		return fmt.Errorf("MEDIA_MAX_DIMENSION must be positive, got %d", c.MediaMaxDimension)
	}
	if c.MediaThumbnailSize <= 0 {
		return fmt.Errorf("MEDIA_THUMBNAIL_SIZE must be positive, got %d", c.MediaThumbnailSize)
	}
	if c.MediaQuality < 1 || c.MediaQuality > 100 {
		return fmt.Errorf("MEDIA_QUALITY must be within 1..100, got %d", c.MediaQuality)
	}
	if c.MediaThumbnailQuality < 1 || c.MediaThumbnailQuality > 100 {
		return fmt.Errorf("MEDIA_THUMBNAIL_QUALITY must be within 1..100, got %d", c.MediaThumbnailQuality)
	}
	if c.MediaUserQuotaBytes <= 0 {
		return fmt.Errorf("MEDIA_USER_QUOTA_BYTES must be positive")
	}
	if c.MediaMaxFiles <= 0 || c.MediaMaxFileBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_FILES and MEDIA_MAX_FILE_BYTES must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// S3MirrorEnabled reports whether stored media is mirrored to a bucket.
func (c *Config) S3MirrorEnabled() bool {
	return strings.TrimSpace(c.MediaS3Bucket) != ""
}
