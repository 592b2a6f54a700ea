// Package config provides configuration loading and structs for the mirip server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Source    SourceConfig    `yaml:"source"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths of the persisted index artifacts and the build history.
type StorageConfig struct {
	IndexPath   string `yaml:"index_path"`
	MappingPath string `yaml:"mapping_path"`
	HistoryPath string `yaml:"history_path"`
	Compress    bool   `yaml:"compress"`
}

// MirrorConfig holds the optional S3-compatible artifact mirror.
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// SourceConfig holds where product rows are read from. The database is tried
// first, then the SQL dump, then the XLSX export.
type SourceConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Table       string `yaml:"table"`
	DumpPath    string `yaml:"dump_path"`
	XLSXPath    string `yaml:"xlsx_path"`
	XLSXSheet   string `yaml:"xlsx_sheet"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Backend         string        `yaml:"backend"`
	ModelPath       string        `yaml:"model_path"`
	VisionModelPath string        `yaml:"vision_model_path"`
	Dimensions      int           `yaml:"dimensions"`
	MaxTokens       int           `yaml:"max_tokens"`
	CacheSize       int           `yaml:"cache_size"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Timeout         time.Duration `yaml:"timeout"`
	ImageTimeout    time.Duration `yaml:"image_timeout"`
}

// IndexConfig holds vector index and build settings.
type IndexConfig struct {
	Type           string        `yaml:"type"`
	ReadyThreshold int           `yaml:"ready_threshold"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
}

// SearchConfig holds search request settings.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// WatchConfig holds the fallback source file watcher settings.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Embedding backends.
const (
	BackendMock   = "mock"
	BackendONNX   = "onnx"
	BackendOpenAI = "openai"
)

// Load reads and parses the config file at path, applies defaults and
// environment overrides, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env"), ".env"); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.MappingPath = expandPath(cfg.Storage.MappingPath, configDir)
	cfg.Storage.HistoryPath = expandPath(cfg.Storage.HistoryPath, configDir)
	cfg.Source.DumpPath = expandPath(cfg.Source.DumpPath, configDir)
	cfg.Source.XLSXPath = expandPath(cfg.Source.XLSXPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Embedding.VisionModelPath = expandPath(cfg.Embedding.VisionModelPath, configDir)

	return &cfg, nil
}

// LoadDotEnv loads each existing .env file into the process environment.
// Variables already set are not overridden, and earlier files win over later ones.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with MYSQL_URL (or DATABASE_URL), OPENAI_API_KEY,
// OPENAI_BASE_URL and EMBEDDING_MODEL when set.
func ApplyEnv(cfg *Config) {
	if v := firstEnv("MYSQL_URL", "DATABASE_URL"); v != "" {
		cfg.Source.DatabaseURL = v
	}
	if v := firstEnv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := firstEnv("OPENAI_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := firstEnv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// Summary reports the settings shown by the status endpoint. Secrets and the
// database URL are never included.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"embedding_backend": c.Embedding.Backend,
		"index_type":        c.Index.Type,
		"ready_threshold":   c.Index.ReadyThreshold,
		"default_top_k":     c.Search.DefaultTopK,
		"max_top_k":         c.Search.MaxTopK,
		"index_path":        c.Storage.IndexPath,
		"mapping_path":      c.Storage.MappingPath,
		"database":          c.Source.DatabaseURL != "",
		"dump_path":         c.Source.DumpPath,
		"xlsx_path":         c.Source.XLSXPath,
		"mirror":            c.Mirror.Enabled,
		"watch":             c.Watch.Enabled,
	}
}
