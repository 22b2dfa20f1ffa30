package config

import "time"

// Defaults that other packages fall back to when constructed without a Config.
const (
	DefaultIndexName    = "rag-index"
	DefaultDimensions   = 1536
	DefaultMetric       = "cosine"
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 5
	DefaultWindow       = 5
	DefaultTemperature  = 0.7
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/documents.db"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = DefaultChunkSize
	}
	if cfg.Chunking.ChunkOverlap == nil {
		cfg.Chunking.ChunkOverlap = intPtr(DefaultChunkOverlap)
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "http"
	}
	if cfg.Embedding.Format == "" {
		cfg.Embedding.Format = "titan"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = DefaultDimensions
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.IndexName == "" {
		cfg.Vector.IndexName = DefaultIndexName
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = DefaultMetric
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "completion"
	}
	if cfg.Generation.AnthropicVersion == "" {
		cfg.Generation.AnthropicVersion = "bedrock-2023-05-31"
	}
	if cfg.Generation.Temperature == nil {
		t := DefaultTemperature
		cfg.Generation.Temperature = &t
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 200
	}
	if cfg.Generation.TopP == 0 {
		cfg.Generation.TopP = 0.999
	}
	if cfg.Generation.TopK == 0 {
		cfg.Generation.TopK = 100
	}
	if cfg.Generation.StopSequences == nil {
		cfg.Generation.StopSequences = []string{"\n\nHuman:"}
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Conversation.Window == nil {
		cfg.Conversation.Window = intPtr(DefaultWindow)
	}
	if cfg.Ingest.EmbedConcurrency == 0 {
		cfg.Ingest.EmbedConcurrency = 4
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".pdf", ".txt", ".md", ".xlsx"}
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

func intPtr(n int) *int { return &n }
