package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents process configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	BaseURL        string
	APIToken       string
	SessionCookie  string
	ProjectID      string
	Model          string
	EnhanceModelID string

	MaxPollAttempts int
	PollInterval    time.Duration
	RequestTimeout  time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		BaseURL:          os.Getenv("GENLAB_BASE_URL"),
		APIToken:         os.Getenv("GENLAB_API_TOKEN"),
		SessionCookie:    os.Getenv("GENLAB_SESSION_COOKIE"),
		ProjectID:        os.Getenv("GENLAB_PROJECT_ID"),
		Model:            getEnv("GENLAB_MODEL", "sdxl-base-1.0"),
		EnhanceModelID:   getEnv("GENLAB_ENHANCE_MODEL", "prompt-expansion-v1"),
		MaxPollAttempts:  getEnvInt("GENLAB_MAX_POLL_ATTEMPTS", 30),
		PollInterval:     time.Second * time.Duration(getEnvInt("GENLAB_POLL_INTERVAL_SECONDS", 2)),
		RequestTimeout:   time.Second * time.Duration(getEnvInt("GENLAB_REQUEST_TIMEOUT_SECONDS", 45)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("GENLAB_BASE_URL is required")
	}

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("GENLAB_API_TOKEN is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
