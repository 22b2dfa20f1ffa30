// Package config provides configuration loading and structs for the kotae server.
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
	Debug        bool               `yaml:"debug"`
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Chunking     ChunkingConfig     `yaml:"chunking"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Vector       VectorConfig       `yaml:"vector"`
	Generation   GenerationConfig   `yaml:"generation"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Conversation ConversationConfig `yaml:"conversation"`
	Ingest       IngestConfig       `yaml:"ingest"`
	Watch        WatchConfig        `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// StorageConfig holds the path of the object store database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ChunkingConfig holds text splitting settings, in characters. An unset overlap
// defaults to 200; an explicit 0 disables it.
type ChunkingConfig struct {
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap *int `yaml:"chunk_overlap"`
}

// OverlapOrDefault returns the configured overlap, or the default when unset.
func (c ChunkingConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return DefaultChunkOverlap
}

// EmbeddingConfig selects and configures the embedding service.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // http, bedrock, gemini, mock
	Endpoint   string        `yaml:"endpoint"`
	Region     string        `yaml:"region"` // bedrock only
	Model      string        `yaml:"model"`
	Format     string        `yaml:"format"` // titan or openai, http provider only
	Dimensions int           `yaml:"dimensions"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
}

// APIKey reads the embedding credential from the configured environment variable.
func (e EmbeddingConfig) APIKey() string {
	return lookupEnv(e.APIKeyEnv)
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Backend      string `yaml:"backend"` // memory, milvus, chroma
	IndexName    string `yaml:"index_name"`
	Metric       string `yaml:"metric"`
	Address      string `yaml:"address"`
	APIKeyEnv    string `yaml:"api_key_env"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// APIKey reads the vector index credential from the configured environment variable.
func (v VectorConfig) APIKey() string {
	return lookupEnv(v.APIKeyEnv)
}

// GenerationConfig selects the generation service and its sampling parameters.
type GenerationConfig struct {
	Provider         string        `yaml:"provider"` // completion, bedrock, gemini
	Endpoint         string        `yaml:"endpoint"`
	Region           string        `yaml:"region"` // bedrock only
	Model            string        `yaml:"model"`
	APIKeyEnv        string        `yaml:"api_key_env"`
	AnthropicVersion string        `yaml:"anthropic_version"`
	Temperature      *float64      `yaml:"temperature"`
	MaxTokens        int           `yaml:"max_tokens"`
	TopP             float64       `yaml:"top_p"`
	TopK             int           `yaml:"top_k"`
	StopSequences    []string      `yaml:"stop_sequences"`
	Timeout          time.Duration `yaml:"timeout"`
}

// APIKey reads the generation credential from the configured environment variable.
func (g GenerationConfig) APIKey() string {
	return lookupEnv(g.APIKeyEnv)
}

// TemperatureOrDefault returns the configured temperature, or 0.7 when unset.
func (g GenerationConfig) TemperatureOrDefault() float64 {
	if g.Temperature != nil {
		return *g.Temperature
	}
	return DefaultTemperature
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// ConversationConfig holds conversation window settings. A window of 0 leaves
// prior turns out of the prompt; MaxTurns of 0 keeps every turn until the history
// is cleared.
type ConversationConfig struct {
	Window   *int `yaml:"window"`
	MaxTurns int  `yaml:"max_turns"`
}

// WindowOrDefault returns the configured window, or 5 when unset.
func (c ConversationConfig) WindowOrDefault() int {
	if c.Window != nil {
		return *c.Window
	}
	return DefaultWindow
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	EmbedConcurrency int      `yaml:"embed_concurrency"`
	Extensions       []string `yaml:"extensions"`
}

// WatchConfig holds inbox directory settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// A .env file next to the config, when present, is loaded into the environment so
// api_key_env references resolve. Variables already set in the environment win.
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

	configDir := filepath.Dir(path)
	if err := LoadEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Vector.SnapshotPath != "" {
		cfg.Vector.SnapshotPath = expandPath(cfg.Vector.SnapshotPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// LoadEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

// Save writes cfg to path as YAML. `kotae init` uses it to write the starter config.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
