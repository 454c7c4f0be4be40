package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"geolift/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Engine   EngineConfig
	Paths    PathConfig
}

// DatabaseConfig holds database connection settings. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL          string `validate:"omitempty,url"`
	MaxOpenConns int    `validate:"gte=0"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required,numeric"`
	GinMode string `validate:"oneof=debug release test"`
}

// LoggingConfig selects zerolog level and output format
type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn error"`
	Format string `validate:"oneof=console json auto"`
}

// EngineConfig holds experiment defaults shared by CLI and API
type EngineConfig struct {
	BatchConcurrency int     `validate:"gte=1,lte=64"`
	DefaultAlpha     float64 `validate:"gt=0,lt=1"`
	DefaultPower     float64 `validate:"gt=0,lt=1"`
}

// PathConfig holds file system paths
type PathConfig struct {
	TemplatesFile string
	MarketsFile   string
}

// LoadDotenv loads .env files when present. A missing file is not an error.
func LoadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "auto")),
		},
		Engine: EngineConfig{
			BatchConcurrency: getEnvIntOrDefault("BATCH_CONCURRENCY", 4),
			DefaultAlpha:     getEnvFloatOrDefault("DEFAULT_ALPHA", 0.05),
			DefaultPower:     getEnvFloatOrDefault("DEFAULT_POWER", 0.80),
		},
		Paths: PathConfig{
			TemplatesFile: getEnvOrDefault("TEMPLATES_FILE", ""),
			MarketsFile:   getEnvOrDefault("MARKETS_FILE", ""),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Validate checks struct constraints and reports the first failing field.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return &errors.AppError{
			Code:      errors.CodeConfigInvalid,
			Component: "config",
			Field:     fe.Namespace(),
			Message:   "failed " + fe.Tag() + " constraint",
		}
	}
	return errors.WithCode(errors.CodeConfigInvalid, err)
}

// PersistenceEnabled reports whether a database is configured.
func (c *Config) PersistenceEnabled() bool {
	return c.Database.URL != ""
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
