// Package config loads runtime settings from the environment.
//
// Values come from process environment variables. An optional .env file is
// read first; variables already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/media"
)

// MinSecretLength mirrors the token service's requirement so a bad secret
// is reported at startup with the variable name.
const MinSecretLength = 16

type Config struct {
	Port           int
	DBPath         string
	UploadDir      string
	JWTSecret      string
	TokenTTL       time.Duration
	MaxUploadBytes int64
	NatsURL        string // empty disables event publishing
	LogLevel       slog.Level
}

// Load reads envFiles (default ".env") if they exist, then builds a Config
// from the environment. Malformed values are errors; required settings are
// checked separately by Validate, so commands that only touch the database
// can run without a signing secret.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: reading %s: %w", f, err)
		}
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", "data/postboard.db"),
		UploadDir: getEnv("UPLOAD_DIR", "uploads"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		NatsURL:   getEnv("NATS_URL", ""),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(getEnv("PORT", "8080")); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: invalid PORT %q", os.Getenv("PORT"))
	}
	if cfg.TokenTTL, err = time.ParseDuration(getEnv("TOKEN_TTL", auth.DefaultTokenTTL.String())); err != nil || cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("config: invalid TOKEN_TTL %q", os.Getenv("TOKEN_TTL"))
	}
	maxBytes := getEnv("MAX_UPLOAD_BYTES", strconv.FormatInt(media.DefaultMaxBytes, 10))
	if cfg.MaxUploadBytes, err = strconv.ParseInt(maxBytes, 10, 64); err != nil || cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("config: invalid MAX_UPLOAD_BYTES %q", maxBytes)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("config: invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the HTTP server cannot run without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if len(c.JWTSecret) < MinSecretLength {
		return fmt.Errorf("config: JWT_SECRET must be at least %d characters", MinSecretLength)
	}
	if c.DBPath == "" {
		return errors.New("config: DB_PATH must not be empty")
	}
	if c.UploadDir == "" {
		return errors.New("config: UPLOAD_DIR must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
