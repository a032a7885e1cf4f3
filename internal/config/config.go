package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"lumen"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"lumen"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"redis:6379"`
	RedisPass string `envconfig:"REDIS_PASS"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"weaviate:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:"minio:9000"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"lumen-documents"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	AuthSecret   string `envconfig:"AUTH_SECRET"`

	// Workers
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
	MaxAttempts       uint16 `envconfig:"MAX_ATTEMPTS" default:"5"`
	// How often an in-flight message's processing lease is renewed.
	TouchIntervalSeconds int `envconfig:"TOUCH_INTERVAL_SECONDS" default:"30"`
	EmbedPoolSize        int `envconfig:"EMBED_POOL_SIZE" default:"5"`

	// Server
	ServerPort      int   `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64 `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// TouchInterval is how often in-flight message leases are renewed.
func (c *Config) TouchInterval() time.Duration {
	return time.Duration(c.TouchIntervalSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("%w: AUTH_SECRET", ErrMissingRequired)
	}
	return nil
}
