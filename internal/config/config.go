package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr                  string        `yaml:"addr"`
	OfflineDBPath         string        `yaml:"offline_db_path"`
	RemoteDSN             string        `yaml:"remote_dsn"`
	RemoteMigrate         bool          `yaml:"remote_migrate"`
	LogLevel              string        `yaml:"log_level"`
	FetchTimeout          time.Duration `yaml:"fetch_timeout"`
	FetchMaxBytes         int64         `yaml:"fetch_max_bytes"`
	CacheWorkerCount      int           `yaml:"cache_worker_count"`
	CacheQueueSize        int           `yaml:"cache_queue_size"`
	AudioCompression      bool          `yaml:"audio_compression"`
	AudioCompressionLevel int           `yaml:"audio_compression_level"`
	BlobPrefix            string        `yaml:"blob_prefix"`
	S3Endpoint            string        `yaml:"s3_endpoint"`
	S3Region              string        `yaml:"s3_region"`
	S3AccessKey           string        `yaml:"s3_access_key"`
	S3SecretKey           string        `yaml:"s3_secret_key"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:                  ":8080",
		OfflineDBPath:         "hanziflash-offline.db",
		LogLevel:              "INFO",
		FetchTimeout:          15 * time.Second,
		FetchMaxBytes:         10 << 20,
		CacheWorkerCount:      2,
		CacheQueueSize:        128,
		AudioCompressionLevel: 3,
		BlobPrefix:            "/blobs/",
		S3Region:              "us-east-1",
	}
}

// Load reads configuration from a .env file (if present), then the YAML file
// named by CONFIG_FILE (if set), then environment variables. Later sources
// override earlier ones. An explicitly empty OFFLINE_DB_PATH disables
// offline storage.
func Load() (Config, error) {
	// Ignore error so the app still starts when .env is absent in production.
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.Addr = envOr("ADDR", cfg.Addr)
	if v, ok := os.LookupEnv("OFFLINE_DB_PATH"); ok {
		cfg.OfflineDBPath = v
	}
	cfg.RemoteDSN = envOr("REMOTE_DSN", cfg.RemoteDSN)
	cfg.RemoteMigrate = envBoolOr("REMOTE_MIGRATE", cfg.RemoteMigrate)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.FetchTimeout = envDurationOr("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchMaxBytes = int64(envIntOr("FETCH_MAX_BYTES", int(cfg.FetchMaxBytes)))
	cfg.CacheWorkerCount = envIntOr("CACHE_WORKER_COUNT", cfg.CacheWorkerCount)
	cfg.CacheQueueSize = envIntOr("CACHE_QUEUE_SIZE", cfg.CacheQueueSize)
	cfg.AudioCompression = envBoolOr("AUDIO_COMPRESSION", cfg.AudioCompression)
	cfg.AudioCompressionLevel = envIntOr("AUDIO_COMPRESSION_LEVEL", cfg.AudioCompressionLevel)
	cfg.BlobPrefix = envOr("BLOB_PREFIX", cfg.BlobPrefix)
	cfg.S3Endpoint = envOr("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = envOr("S3_REGION", cfg.S3Region)
	cfg.S3AccessKey = envOr("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = envOr("S3_SECRET_KEY", cfg.S3SecretKey)
	return cfg, nil
}

// LoadFile overlays the values present in a YAML file onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "ADDR cannot be empty")
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not one of DEBUG, INFO, WARN, ERROR", c.LogLevel))
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "FETCH_TIMEOUT must be positive")
	}
	if c.FetchMaxBytes <= 0 {
		problems = append(problems, "FETCH_MAX_BYTES must be positive")
	}
	if c.CacheWorkerCount < 1 {
		problems = append(problems, "CACHE_WORKER_COUNT must be at least 1")
	}
	if c.CacheQueueSize < 1 {
		problems = append(problems, "CACHE_QUEUE_SIZE must be at least 1")
	}
	if c.AudioCompressionLevel < 0 || c.AudioCompressionLevel > 22 {
		problems = append(problems, "AUDIO_COMPRESSION_LEVEL must be between 0 and 22")
	}
	if !strings.HasPrefix(c.BlobPrefix, "/") || !strings.HasSuffix(c.BlobPrefix, "/") {
		problems = append(problems, "BLOB_PREFIX must start and end with /")
	}
	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		problems = append(problems, "S3_ACCESS_KEY and S3_SECRET_KEY must be set together")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// OfflineEnabled reports whether durable offline storage is configured.
func (c Config) OfflineEnabled() bool { return c.OfflineDBPath != "" }

// RemoteEnabled reports whether a remote store is configured.
func (c Config) RemoteEnabled() bool { return c.RemoteDSN != "" }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("invalid value for %s=%q, using default %t", key, v, def)
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("invalid value for %s=%q, using default %s", key, v, def)
	}
	return def
}

// S3Enabled reports whether s3:// audio URLs should be fetched.
func (c Config) S3Enabled() bool { return c.S3Endpoint != "" || c.S3AccessKey != "" }
