// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultBlobMaxBytes is the blob size ceiling used when BLOB_MAX_BYTES is unset.
const DefaultBlobMaxBytes int64 = 1_000_000

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// TLS (optional; HTTPS when both are set)
	TLSCertFile string
	TLSKeyFile  string

	// Auth (optional; function endpoints are open when neither is set)
	FunctionKey string
	JWTSecret   string

	// Storage backend ("local", "s3" or "memory", default: "local")
	StorageBackend   string
	LocalStoragePath string

	// S3 storage
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Blob reader
	BlobMaxBytes         int64
	BlobDefaultContainer string

	// OpenAI
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// DIAL (OpenAI-compatible proxy with per-deployment routes)
	DialAPIKey     string
	DialModel      string
	DialBaseURL    string
	DialAPIVersion string

	CompletionTimeout time.Duration

	// Results queue ("nats" or "redis", default: "nats")
	QueueBackend string
	NATSURL      string
	RedisURL     string
	ResultsQueue string
	// Broker connection attempts at startup (0 = keep trying)
	QueueConnectAttempts int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:           envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:          envOr("METRICS_ADDR", ":9090"),
		LogLevel:             envOr("LOG_LEVEL", "info"),
		LogFormat:            envOr("LOG_FORMAT", "json"),
		TLSCertFile:          envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:           envOr("TLS_KEY_FILE", ""),
		FunctionKey:          envOr("FUNCTION_KEY", ""),
		JWTSecret:            envOr("JWT_SECRET", ""),
		StorageBackend:       envOr("STORAGE_BACKEND", "local"),
		LocalStoragePath:     envOr("LOCAL_STORAGE_PATH", "/data/blobs"),
		S3Endpoint:           envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3AccessKey:          envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:          envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:             envOr("S3_REGION", "us-east-1"),
		S3UseSSL:             envBool("S3_USE_SSL", false),
		BlobMaxBytes:         envInt64("BLOB_MAX_BYTES", DefaultBlobMaxBytes),
		BlobDefaultContainer: envOr("BLOB_DEFAULT_CONTAINER", ""),
		OpenAIAPIKey:         envOr("OPENAI_API_KEY", ""),
		OpenAIModel:          envOr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:        envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		DialAPIKey:           envOr("DIAL_API_KEY", ""),
		DialModel:            envOr("DIAL_MODEL", ""),
		DialBaseURL:          envOr("DIAL_BASE_URL", "https://ai-proxy.lab.epam.com"),
		DialAPIVersion:       envOr("DIAL_API_VERSION", "2024-02-01"),
		CompletionTimeout:    envDuration("COMPLETION_TIMEOUT", 60*time.Second),
		QueueBackend:         envOr("QUEUE_BACKEND", "nats"),
		NATSURL:              envOr("NATS_URL", "nats://localhost:4222"),
		RedisURL:             envOr("REDIS_URL", ""),
		ResultsQueue:         envOr("RESULTS_QUEUE", "openai-results"),
		QueueConnectAttempts: int(envInt64("QUEUE_CONNECT_ATTEMPTS", 5)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	if c.BlobMaxBytes <= 0 {
		return fmt.Errorf("BLOB_MAX_BYTES must be positive, got %d", c.BlobMaxBytes)
	}
	switch c.StorageBackend {
	case "local", "s3", "memory":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND: %s", c.StorageBackend)
	}
	switch c.QueueBackend {
	case "nats":
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for the nats queue backend")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis queue backend")
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND: %s", c.QueueBackend)
	}
	if c.ResultsQueue == "" {
		return fmt.Errorf("RESULTS_QUEUE must not be empty")
	}
	if c.QueueConnectAttempts < 0 {
		return fmt.Errorf("QUEUE_CONNECT_ATTEMPTS must not be negative, got %d", c.QueueConnectAttempts)
	}
	return nil
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
