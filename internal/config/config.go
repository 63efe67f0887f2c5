package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	APIKeys    []string
	PublicURL  string

	DBPath      string
	PostgresDSN string

	BlobDir          string
	BlobBucket       string
	UploadSigningKey string
	UploadTTL        time.Duration
	MaxUploadBytes   int64

	ExtractTimeout time.Duration
	TesseractPath  string
	TesseractLang  string

	CallbackBlockPrivate bool

	Concurrency int
	QueueSize   int

	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	RateLimitRPS int
	CORSOrigins  []string
	LogLevel     slog.Level
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       getEnv("SCANHOOK_LISTEN_ADDR", ":8080"),
		PublicURL:        getEnv("SCANHOOK_PUBLIC_URL", "http://localhost:8080"),
		DBPath:           getEnv("SCANHOOK_DB_PATH", "scanhook.db"),
		PostgresDSN:      getEnv("SCANHOOK_POSTGRES_DSN", ""),
		BlobDir:          getEnv("SCANHOOK_BLOB_DIR", "uploads"),
		BlobBucket:       getEnv("SCANHOOK_BLOB_BUCKET", "scanhook-uploads"),
		UploadSigningKey: getEnv("SCANHOOK_UPLOAD_SIGNING_KEY", ""),
		TesseractPath:    getEnv("SCANHOOK_TESSERACT_PATH", "tesseract"),
		TesseractLang:    getEnv("SCANHOOK_TESSERACT_LANG", "eng"),
		RedisAddr:        getEnv("SCANHOOK_REDIS_ADDR", ""),
		RedisPassword:    getEnv("SCANHOOK_REDIS_PASSWORD", ""),
		RedisChannel:     getEnv("SCANHOOK_REDIS_CHANNEL", "scanhook:jobs"),
		CORSOrigins:      splitList(getEnv("SCANHOOK_CORS_ORIGINS", "")),
	}

	cfg.APIKeys = splitList(getEnv("SCANHOOK_API_KEYS", ""))
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("SCANHOOK_API_KEYS must contain at least one key")
	}
	if cfg.UploadSigningKey == "" {
		return nil, errors.New("SCANHOOK_UPLOAD_SIGNING_KEY must not be empty")
	}

	var err error
	cfg.Concurrency, err = getEnvInt("SCANHOOK_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("SCANHOOK_CONCURRENCY: %w", err)
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("SCANHOOK_CONCURRENCY must be > 0")
	}

	cfg.QueueSize, err = getEnvInt("SCANHOOK_QUEUE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SCANHOOK_QUEUE_SIZE: %w", err)
	}
	if cfg.QueueSize < 1 {
		return nil, errors.New("SCANHOOK_QUEUE_SIZE must be > 0")
	}

	cfg.RateLimitRPS, err = getEnvInt("SCANHOOK_RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, fmt.Errorf("SCANHOOK_RATE_LIMIT_RPS: %w", err)
	}

	maxUpload, err := getEnvInt("SCANHOOK_MAX_UPLOAD_BYTES", 20<<20)
	if err != nil {
		return nil, fmt.Errorf("SCANHOOK_MAX_UPLOAD_BYTES: %w", err)
	}
	if maxUpload < 1 {
		return nil, errors.New("SCANHOOK_MAX_UPLOAD_BYTES must be > 0")
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	cfg.UploadTTL, err = getEnvDuration("SCANHOOK_UPLOAD_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SCANHOOK_UPLOAD_TTL: %w", err)
	}
	if cfg.UploadTTL <= 0 {
		return nil, errors.New("SCANHOOK_UPLOAD_TTL must be positive")
	}

	cfg.ExtractTimeout, err = getEnvDuration("SCANHOOK_EXTRACT_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SCANHOOK_EXTRACT_TIMEOUT: %w", err)
	}

	cfg.CallbackBlockPrivate, err = getEnvBool("SCANHOOK_CALLBACK_BLOCK_PRIVATE", false)
	if err != nil {
		return nil, fmt.Errorf("SCANHOOK_CALLBACK_BLOCK_PRIVATE: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("SCANHOOK_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("SCANHOOK_LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", v)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
