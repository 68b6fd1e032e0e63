package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/soaringjerry/Spotcheck/internal/utils"
)

const devJWTSecret = "spotcheck-dev-secret"

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Auth       AuthConfig
	Database   DatabaseConfig
	Classifier ClassifierConfig
	Redis      RedisConfig
	Build      BuildConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	StaticDir       string
	MaxImageBytes   int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type DatabaseConfig struct {
	SQLitePath    string
	MigrationsDir string
}

// ClassifierConfig is disabled when Endpoint is empty.
type ClassifierConfig struct {
	Endpoint      string
	APIKey        string
	MinConfidence float64
	Timeout       time.Duration
	MaxAttempts   int
}

// RedisConfig is disabled when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type BuildConfig struct {
	Commit    string
	BuildTime string
}

// Load loads configuration from SPOTCHECK_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            utils.SafeEnv("SPOTCHECK_ADDR", ":8080"),
			Env:             utils.SafeEnv("SPOTCHECK_ENV", "development"),
			StaticDir:       utils.SafeEnv("SPOTCHECK_STATIC_DIR", ""),
			MaxImageBytes:   utils.SafeEnvInt("SPOTCHECK_MAX_IMAGE_BYTES", 10<<20),
			ReadTimeout:     utils.SafeEnvDuration("SPOTCHECK_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    utils.SafeEnvDuration("SPOTCHECK_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: utils.SafeEnvDuration("SPOTCHECK_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level: utils.SafeEnv("SPOTCHECK_LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: utils.SafeEnv("SPOTCHECK_JWT_SECRET", devJWTSecret),
			TokenTTL:  utils.SafeEnvDuration("SPOTCHECK_TOKEN_TTL", 30*24*time.Hour),
		},
		Database: DatabaseConfig{
			SQLitePath:    utils.SafeEnv("SPOTCHECK_SQLITE_PATH", "data/spotcheck.db"),
			MigrationsDir: utils.SafeEnv("SPOTCHECK_MIGRATIONS_DIR", ""),
		},
		Classifier: ClassifierConfig{
			Endpoint:      utils.SafeEnv("SPOTCHECK_CLASSIFIER_ENDPOINT", ""),
			APIKey:        utils.SafeEnv("SPOTCHECK_CLASSIFIER_API_KEY", ""),
			MinConfidence: utils.SafeEnvFloat("SPOTCHECK_CLASSIFIER_MIN_CONFIDENCE", 0),
			Timeout:       utils.SafeEnvDuration("SPOTCHECK_CLASSIFIER_TIMEOUT", 20*time.Second),
			MaxAttempts:   utils.SafeEnvInt("SPOTCHECK_CLASSIFIER_MAX_ATTEMPTS", 3),
		},
		Redis: RedisConfig{
			Addr:     utils.SafeEnv("SPOTCHECK_REDIS_ADDR", ""),
			Password: utils.SafeEnv("SPOTCHECK_REDIS_PASSWORD", ""),
			DB:       utils.SafeEnvInt("SPOTCHECK_REDIS_DB", 0),
			TTL:      utils.SafeEnvDuration("SPOTCHECK_CLASSIFIER_CACHE_TTL", 24*time.Hour),
		},
		Build: BuildConfig{
			Commit:    utils.SafeEnv("SPOTCHECK_COMMIT", ""),
			BuildTime: utils.SafeEnv("SPOTCHECK_BUILD_TIME", ""),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool { return c.Server.Env == "development" }

func (c *Config) ClassifierEnabled() bool { return c.Classifier.Endpoint != "" }

func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }

func (c *Config) Validate() error {
	var errs []error
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("SPOTCHECK_CLASSIFIER_MIN_CONFIDENCE must be within [0,1], got %v", c.Classifier.MinConfidence))
	}
	if c.Classifier.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("SPOTCHECK_CLASSIFIER_MAX_ATTEMPTS must be >= 1, got %d", c.Classifier.MaxAttempts))
	}
	if c.Server.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("SPOTCHECK_MAX_IMAGE_BYTES must be positive"))
	}
	if !c.IsDevelopment() && c.Auth.JWTSecret == devJWTSecret {
		errs = append(errs, errors.New("SPOTCHECK_JWT_SECRET must be set outside development"))
	}
	return errors.Join(errs...)
}
