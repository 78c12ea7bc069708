package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`

	// Providers
	DetectorProvider  string `envconfig:"DETECTOR_PROVIDER" default:"inference"`
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"deepface"`
	InferenceURL      string `envconfig:"INFERENCE_URL" default:"http://localhost:5006"`
	DeepFaceURL       string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	AWSRegion         string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Proctoring
	ReferenceImagesDir    string        `envconfig:"REFERENCE_IMAGES_DIR" default:"face_images"`
	FaceConfidence        float64       `envconfig:"FACE_CONFIDENCE" default:"0.5"`
	DeviceConfidence      float64       `envconfig:"DEVICE_CONFIDENCE" default:"0.35"`
	VerificationThreshold float64       `envconfig:"VERIFICATION_THRESHOLD" default:"0.85"`
	DuplicateWindow       time.Duration `envconfig:"DUPLICATE_WINDOW" default:"2s"`

	// Notifications
	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// Security
	APIKey       string `envconfig:"API_KEY"`
	RateLimitMax int    `envconfig:"RATE_LIMIT_MAX" default:"600"`
}

// Load reads the server configuration; DATABASE_URL is required
func Load() (*Config, error) {
	cfg, err := LoadOffline()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("load config: DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadOffline reads the configuration without requiring a database, for
// tools that only run the models
func LoadOffline() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.FaceConfidence < 0 || c.FaceConfidence > 1 {
		return fmt.Errorf("FACE_CONFIDENCE must be in [0,1], got %v", c.FaceConfidence)
	}
	if c.DeviceConfidence < 0 || c.DeviceConfidence > 1 {
		return fmt.Errorf("DEVICE_CONFIDENCE must be in [0,1], got %v", c.DeviceConfidence)
	}
	if c.VerificationThreshold <= 0 {
		return fmt.Errorf("VERIFICATION_THRESHOLD must be positive, got %v", c.VerificationThreshold)
	}
	if c.DuplicateWindow < 0 {
		return fmt.Errorf("DUPLICATE_WINDOW must not be negative, got %v", c.DuplicateWindow)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
