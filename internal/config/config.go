// Package config provides configuration for the stream catalog services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds the configuration for the stream catalog server.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Compaction purge configuration
	Compaction CompactionConfig `json:"compaction" yaml:"compaction"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address for the stream API and /metrics
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (MinIO)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// CacheConfig holds the in-process cache configuration.
type CacheConfig struct {
	// SchemaTTL is how long a cached schema is served before re-reading the store
	SchemaTTL time.Duration `json:"schema_ttl" yaml:"schema_ttl"`

	// StatsRefreshInterval is how often the stats cache is reloaded from the stats table
	StatsRefreshInterval time.Duration `json:"stats_refresh_interval" yaml:"stats_refresh_interval"`
}

// CompactionConfig holds the purge daemon configuration.
type CompactionConfig struct {
	// CheckInterval is the interval between scans for streams marked for deletion
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is text or json
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/streamcatalog",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Storage: StorageConfig{
			Type: StorageLocal,
		},
		Cache: CacheConfig{
			SchemaTTL:            5 * time.Minute,
			StatsRefreshInterval: 30 * time.Second,
		},
		Compaction: CompactionConfig{
			CheckInterval: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/streamcatalog"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// ManifestPath returns the path to the manifest database.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.db")
}

// IsLocalDisk reports whether stream data lives on the local filesystem.
func (c *Config) IsLocalDisk() bool {
	return c.Storage.Type != StorageS3
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != StorageLocal && c.Storage.Type != StorageS3 {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == StorageS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}

	if c.Cache.SchemaTTL < 0 {
		return fmt.Errorf("cache.schema_ttl must not be negative, got %s", c.Cache.SchemaTTL)
	}

	if c.Cache.StatsRefreshInterval <= 0 {
		return fmt.Errorf("cache.stats_refresh_interval must be positive, got %s", c.Cache.StatsRefreshInterval)
	}

	if c.Compaction.CheckInterval <= 0 {
		return fmt.Errorf("compaction.check_interval must be positive, got %s", c.Compaction.CheckInterval)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the STREAMCATALOG_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STREAMCATALOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("STREAMCATALOG_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// gRPC configuration
	if v := os.Getenv("STREAMCATALOG_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("STREAMCATALOG_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Cache configuration
	if v := os.Getenv("STREAMCATALOG_CACHE_SCHEMA_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SchemaTTL = d
		}
	}
	if v := os.Getenv("STREAMCATALOG_CACHE_STATS_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.StatsRefreshInterval = d
		}
	}

	// Compaction configuration
	if v := os.Getenv("STREAMCATALOG_COMPACTION_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Compaction.CheckInterval = d
		}
	}

	// Storage configuration
	if v := os.Getenv("STREAMCATALOG_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("STREAMCATALOG_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("STREAMCATALOG_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("STREAMCATALOG_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("STREAMCATALOG_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Log configuration
	if v := os.Getenv("STREAMCATALOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STREAMCATALOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.IsLocalDisk() {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
