// Package config provides configuration loading and structs for the kagami server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override remote credentials so they can live in .env files.
const (
	EnvRemoteAccessKey = "KAGAMI_REMOTE_ACCESS_KEY"
	EnvRemoteSecretKey = "KAGAMI_REMOTE_SECRET_KEY"
	EnvHistoryDSN      = "KAGAMI_HISTORY_DSN"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	LogLevel   string           `yaml:"log_level,omitempty"`
	Server     ServerConfig     `yaml:"server"`
	Collection CollectionConfig `yaml:"collection"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Search     SearchConfig     `yaml:"search"`
	Remote     RemoteConfig     `yaml:"remote"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CollectionConfig describes the reference image collection.
type CollectionConfig struct {
	Root string `yaml:"root"`
	// FallbackDir is tried with the image basename when the canonical path is gone.
	FallbackDir string   `yaml:"fallback_dir,omitempty"`
	Extensions  []string `yaml:"extensions"`
}

// StorageConfig holds paths for persisted artifacts and databases.
type StorageConfig struct {
	// StorePath is the base path of the vector store; ".vec" and ".manifest.json" are appended.
	StorePath string `yaml:"store_path"`
	Codec     string `yaml:"codec"`
	// HistoryDSN is a SQLite file path or a postgres:// URL. Empty disables query history.
	HistoryDSN  string `yaml:"history_dsn,omitempty"`
	CatalogPath string `yaml:"catalog_path,omitempty"`
}

// EmbeddingConfig holds ONNX image embedder settings.
type EmbeddingConfig struct {
	ModelPath   string `yaml:"model_path"`
	LibraryPath string `yaml:"library_path,omitempty"`
	Dimensions  int    `yaml:"dimensions"`
	ImageSize   int    `yaml:"image_size"`
	InputName   string `yaml:"input_name"`
	OutputName  string `yaml:"output_name"`
	CacheSize   int    `yaml:"cache_size"`
	// Fallback is the embedder used when the model cannot be loaded: "hash" or "none".
	Fallback string `yaml:"fallback"`
}

// IndexConfig selects the search index implementation.
type IndexConfig struct {
	Type    string `yaml:"type"`
	Workers int    `yaml:"workers"`
	// BuildOnMissing runs ingestion at server start when no persisted store exists.
	BuildOnMissing bool `yaml:"build_on_missing"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers       int     `yaml:"workers"`
	FailurePolicy string  `yaml:"failure_policy"`
	RateLimit     float64 `yaml:"rate_limit,omitempty"`
	RateBurst     int     `yaml:"rate_burst,omitempty"`
	ReportPath    string  `yaml:"report_path,omitempty"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultK int `yaml:"default_k"`
	MaxK     int `yaml:"max_k"`
	// SimilarityScale maps distance to a display percentage: 100 - distance*scale, clamped to [0, 100].
	SimilarityScale float64       `yaml:"similarity_scale"`
	EmbedTimeout    time.Duration `yaml:"embed_timeout"`
	// DegradedPolicy is "reject" or "serve" for queries while running on the fallback embedder.
	DegradedPolicy string `yaml:"degraded_policy"`
}

// RemoteConfig holds S3-compatible mirror settings for the store artifacts.
type RemoteConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}

// Enabled reports whether a remote mirror is configured.
func (r *RemoteConfig) Enabled() bool {
	return r.Endpoint != "" && r.Bucket != ""
}

// WatchConfig holds collection watch settings.
type WatchConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Recursive *bool         `yaml:"recursive"`
	Debounce  time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, applies environment
// overrides, and applies defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Collection.Root = expandPath(cfg.Collection.Root, configDir)
	cfg.Collection.FallbackDir = expandPath(cfg.Collection.FallbackDir, configDir)
	cfg.Storage.StorePath = expandPath(cfg.Storage.StorePath, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	if !isURL(cfg.Storage.HistoryDSN) {
		cfg.Storage.HistoryDSN = expandPath(cfg.Storage.HistoryDSN, configDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Ingest.ReportPath = expandPath(cfg.Ingest.ReportPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and numeric bounds.
func (c *Config) Validate() error {
	switch c.Search.DegradedPolicy {
	case "reject", "serve":
	default:
		return fmt.Errorf("search.degraded_policy must be reject or serve, got %q", c.Search.DegradedPolicy)
	}
	switch c.Embedding.Fallback {
	case "hash", "none":
	default:
		return fmt.Errorf("embedding.fallback must be hash or none, got %q", c.Embedding.Fallback)
	}
	if c.Search.DefaultK > c.Search.MaxK {
		return fmt.Errorf("search.default_k (%d) exceeds search.max_k (%d)", c.Search.DefaultK, c.Search.MaxK)
	}
	if c.Search.SimilarityScale < 0 {
		return fmt.Errorf("search.similarity_scale must not be negative")
	}
	return nil
}

// ApplyEnv overrides secrets from the environment when set.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvRemoteAccessKey); v != "" {
		cfg.Remote.AccessKey = v
	}
	if v := os.Getenv(EnvRemoteSecretKey); v != "" {
		cfg.Remote.SecretKey = v
	}
	if v := os.Getenv(EnvHistoryDSN); v != "" {
		cfg.Storage.HistoryDSN = v
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	return path
}

func isURL(s string) bool {
	return strings.Contains(s, "://")
}
