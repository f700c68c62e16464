package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the runtime settings of the assessment API. Every key can be set through a
// GEMA_ prefixed environment variable, dots replaced by underscores.
type Config struct {
	AppName                   string
	AppEnv                    string
	AppPort                   string
	DatabaseURL               string
	RedisURL                  string
	NATSURL                   string
	NotificationChannel       string
	JWTSecret                 string
	CloudinaryCloudName       string
	CloudinaryAPIKey          string
	CloudinaryAPISecret       string
	CloudinaryUploadFolder    string
	StatsCacheTTL             time.Duration
	MaxBulkEntries            int
	NotificationRetryInterval time.Duration
	NotificationMaxAttempts   int
	SubmitRateLimit           int
	SubmitRateWindow          time.Duration
	ShutdownTimeout           time.Duration
	CORSAllowOrigins          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether attachment uploads are configured.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Assessment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("notifications.channel", "gema")
	v.SetDefault("cloudinary.folder", "gema/assessments")
	v.SetDefault("stats.cache_ttl", "5m")
	v.SetDefault("grading.max_bulk_entries", 200)
	v.SetDefault("notifications.retry_interval", "30s")
	v.SetDefault("notifications.max_attempts", 5)
	v.SetDefault("submit.rate_limit", 30)
	v.SetDefault("submit.rate_window", "1m")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("cors.allow_origins", "*")

	statsTTL, err := duration(v, "stats.cache_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	retryInterval, err := duration(v, "notifications.retry_interval", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	rateWindow, err := duration(v, "submit.rate_window", time.Minute)
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := duration(v, "shutdown.timeout", 10*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                   v.GetString("app.name"),
		AppEnv:                    v.GetString("app.env"),
		AppPort:                   v.GetString("app.port"),
		DatabaseURL:               v.GetString("database.url"),
		RedisURL:                  v.GetString("redis.url"),
		NATSURL:                   v.GetString("nats.url"),
		NotificationChannel:       v.GetString("notifications.channel"),
		JWTSecret:                 v.GetString("jwt.secret"),
		CloudinaryCloudName:       v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:          v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:       v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder:    v.GetString("cloudinary.folder"),
		StatsCacheTTL:             statsTTL,
		MaxBulkEntries:            v.GetInt("grading.max_bulk_entries"),
		NotificationRetryInterval: retryInterval,
		NotificationMaxAttempts:   v.GetInt("notifications.max_attempts"),
		SubmitRateLimit:           v.GetInt("submit.rate_limit"),
		SubmitRateWindow:          rateWindow,
		ShutdownTimeout:           shutdownTimeout,
		CORSAllowOrigins:          v.GetString("cors.allow_origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("jwt secret must be provided")
	}

	if cfg.MaxBulkEntries <= 0 {
		cfg.MaxBulkEntries = 200
	}

	if cfg.NotificationMaxAttempts <= 0 {
		cfg.NotificationMaxAttempts = 5
	}

	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 30
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
