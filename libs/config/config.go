package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilConfig = errors.New("config: nil destination")

	dotenvOnce sync.Once
)

// Load reads a local .env file (when present) once per process and then
// parses environment variables into v using `env` struct tags.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilConfig
	}
	dotenvOnce.Do(func() {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	})
	if err := env.Parse(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func String(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func ValidPort(v string) error {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port %q", v)
	}
	return nil
}

// Bool accepts 1/true/yes/on, case-insensitively.
func Bool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func Duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (got %q)", key, v)
	}
	return d, nil
}
