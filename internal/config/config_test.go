package config

import (
	"log/slog"
	"testing"
	"time"
)

// setRequired sets the variables Load cannot default.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SCANHOOK_API_KEYS", "key1")
	t.Setenv("SCANHOOK_UPLOAD_SIGNING_KEY", "secret")
}

func TestLoad_AllVarsSet(t *testing.T) {
	t.Setenv("SCANHOOK_API_KEYS", "key1, key2")
	t.Setenv("SCANHOOK_UPLOAD_SIGNING_KEY", "secret")
	t.Setenv("SCANHOOK_LISTEN_ADDR", ":9090")
	t.Setenv("SCANHOOK_PUBLIC_URL", "https://scan.example.com")
	t.Setenv("SCANHOOK_DB_PATH", "/tmp/test.db")
	t.Setenv("SCANHOOK_POSTGRES_DSN", "postgres://localhost/scanhook")
	t.Setenv("SCANHOOK_BLOB_DIR", "/var/lib/scanhook")
	t.Setenv("SCANHOOK_BLOB_BUCKET", "docs")
	t.Setenv("SCANHOOK_UPLOAD_TTL", "15m")
	t.Setenv("SCANHOOK_MAX_UPLOAD_BYTES", "1024")
	t.Setenv("SCANHOOK_EXTRACT_TIMEOUT", "30s")
	t.Setenv("SCANHOOK_TESSERACT_PATH", "/usr/bin/tesseract")
	t.Setenv("SCANHOOK_TESSERACT_LANG", "deu")
	t.Setenv("SCANHOOK_CALLBACK_BLOCK_PRIVATE", "true")
	t.Setenv("SCANHOOK_CONCURRENCY", "4")
	t.Setenv("SCANHOOK_QUEUE_SIZE", "500")
	t.Setenv("SCANHOOK_REDIS_ADDR", "localhost:6379")
	t.Setenv("SCANHOOK_REDIS_CHANNEL", "jobs")
	t.Setenv("SCANHOOK_RATE_LIMIT_RPS", "5")
	t.Setenv("SCANHOOK_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("SCANHOOK_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "key1" || cfg.APIKeys[1] != "key2" {
		t.Errorf("APIKeys = %v, want [key1 key2]", cfg.APIKeys)
	}
	if cfg.PublicURL != "https://scan.example.com" {
		t.Errorf("PublicURL = %q", cfg.PublicURL)
	}
	if cfg.PostgresDSN != "postgres://localhost/scanhook" {
		t.Errorf("PostgresDSN = %q", cfg.PostgresDSN)
	}
	if cfg.BlobDir != "/var/lib/scanhook" || cfg.BlobBucket != "docs" {
		t.Errorf("blob = %q %q", cfg.BlobDir, cfg.BlobBucket)
	}
	if cfg.UploadTTL != 15*time.Minute {
		t.Errorf("UploadTTL = %s, want 15m", cfg.UploadTTL)
	}
	if cfg.MaxUploadBytes != 1024 {
		t.Errorf("MaxUploadBytes = %d, want 1024", cfg.MaxUploadBytes)
	}
	if cfg.ExtractTimeout != 30*time.Second {
		t.Errorf("ExtractTimeout = %s, want 30s", cfg.ExtractTimeout)
	}
	if cfg.TesseractPath != "/usr/bin/tesseract" || cfg.TesseractLang != "deu" {
		t.Errorf("tesseract = %q %q", cfg.TesseractPath, cfg.TesseractLang)
	}
	if !cfg.CallbackBlockPrivate {
		t.Error("CallbackBlockPrivate = false, want true")
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.QueueSize != 500 {
		t.Errorf("QueueSize = %d, want 500", cfg.QueueSize)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisChannel != "jobs" {
		t.Errorf("redis = %q %q", cfg.RedisAddr, cfg.RedisChannel)
	}
	if cfg.RateLimitRPS != 5 {
		t.Errorf("RateLimitRPS = %d, want 5", cfg.RateLimitRPS)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %s, want DEBUG", cfg.LogLevel)
	}
}

func TestLoad_MissingAPIKeys(t *testing.T) {
	t.Setenv("SCANHOOK_API_KEYS", " , ")
	t.Setenv("SCANHOOK_UPLOAD_SIGNING_KEY", "secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when SCANHOOK_API_KEYS has no keys, got nil")
	}
}

func TestLoad_MissingSigningKey(t *testing.T) {
	t.Setenv("SCANHOOK_API_KEYS", "key1")
	t.Setenv("SCANHOOK_UPLOAD_SIGNING_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when SCANHOOK_UPLOAD_SIGNING_KEY is empty, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SCANHOOK_CONCURRENCY", "zero"},
		{"SCANHOOK_CONCURRENCY", "0"},
		{"SCANHOOK_QUEUE_SIZE", "-1"},
		{"SCANHOOK_UPLOAD_TTL", "soon"},
		{"SCANHOOK_UPLOAD_TTL", "-1h"},
		{"SCANHOOK_MAX_UPLOAD_BYTES", "0"},
		{"SCANHOOK_EXTRACT_TIMEOUT", "2 minutes"},
		{"SCANHOOK_CALLBACK_BLOCK_PRIVATE", "maybe"},
		{"SCANHOOK_LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	for _, k := range []string{
		"SCANHOOK_LISTEN_ADDR", "SCANHOOK_PUBLIC_URL", "SCANHOOK_DB_PATH",
		"SCANHOOK_POSTGRES_DSN", "SCANHOOK_BLOB_DIR", "SCANHOOK_BLOB_BUCKET",
		"SCANHOOK_UPLOAD_TTL", "SCANHOOK_MAX_UPLOAD_BYTES", "SCANHOOK_EXTRACT_TIMEOUT",
		"SCANHOOK_TESSERACT_PATH", "SCANHOOK_TESSERACT_LANG", "SCANHOOK_CALLBACK_BLOCK_PRIVATE",
		"SCANHOOK_CONCURRENCY", "SCANHOOK_QUEUE_SIZE", "SCANHOOK_REDIS_ADDR",
		"SCANHOOK_REDIS_CHANNEL", "SCANHOOK_RATE_LIMIT_RPS", "SCANHOOK_CORS_ORIGINS",
		"SCANHOOK_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error with defaults, got: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("default ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.PublicURL != "http://localhost:8080" {
		t.Errorf("default PublicURL = %q", cfg.PublicURL)
	}
	if cfg.DBPath != "scanhook.db" {
		t.Errorf("default DBPath = %q, want %q", cfg.DBPath, "scanhook.db")
	}
	if cfg.PostgresDSN != "" {
		t.Errorf("default PostgresDSN = %q, want empty", cfg.PostgresDSN)
	}
	if cfg.BlobDir != "uploads" || cfg.BlobBucket != "scanhook-uploads" {
		t.Errorf("default blob = %q %q", cfg.BlobDir, cfg.BlobBucket)
	}
	if cfg.UploadTTL != time.Hour {
		t.Errorf("default UploadTTL = %s, want 1h", cfg.UploadTTL)
	}
	if cfg.MaxUploadBytes != 20<<20 {
		t.Errorf("default MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.ExtractTimeout != 2*time.Minute {
		t.Errorf("default ExtractTimeout = %s, want 2m", cfg.ExtractTimeout)
	}
	if cfg.TesseractPath != "tesseract" || cfg.TesseractLang != "eng" {
		t.Errorf("default tesseract = %q %q", cfg.TesseractPath, cfg.TesseractLang)
	}
	if cfg.CallbackBlockPrivate {
		t.Error("default CallbackBlockPrivate = true, want false")
	}
	if cfg.Concurrency != 2 {
		t.Errorf("default Concurrency = %d, want 2", cfg.Concurrency)
	}
	if cfg.QueueSize != 1000 {
		t.Errorf("default QueueSize = %d, want 1000", cfg.QueueSize)
	}
	if cfg.RedisAddr != "" || cfg.RedisChannel != "scanhook:jobs" {
		t.Errorf("default redis = %q %q", cfg.RedisAddr, cfg.RedisChannel)
	}
	if cfg.RateLimitRPS != 0 {
		t.Errorf("default RateLimitRPS = %d, want 0", cfg.RateLimitRPS)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Errorf("default CORSOrigins = %v, want none", cfg.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("default LogLevel = %s, want INFO", cfg.LogLevel)
	}
}
