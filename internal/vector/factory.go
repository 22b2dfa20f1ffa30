package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// IndexType represents the vector index backend.
type IndexType string

const (
	// IndexTypeMemory keeps records in process with brute-force search.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeMilvus uses a Milvus server with an HNSW index.
	IndexTypeMilvus IndexType = "milvus"
	// IndexTypeChroma uses a Chroma server.
	IndexTypeChroma IndexType = "chroma"
)

// NewIndex creates an unbound index for the configured backend.
func NewIndex(ctx context.Context, cfg config.VectorConfig, embedder TextEmbedder, logger *zap.Logger) (Index, error) {
	switch IndexType(cfg.Backend) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(), nil
	case IndexTypeMilvus:
		return NewMilvusIndex(ctx, cfg.Address, cfg.APIKey(), logger)
	case IndexTypeChroma:
		return NewChromaIndex(cfg.Address, embedder, logger)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, milvus, chroma)", cfg.Backend)
	}
}

// Open creates the configured index and ensures its collection exists with the
// embedder's dimension. For the memory backend a snapshot at cfg.SnapshotPath is
// loaded when present.
func Open(ctx context.Context, cfg config.VectorConfig, embedder TextEmbedder, logger *zap.Logger) (Index, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndex(ctx, cfg, embedder, logger)
	if err != nil {
		return nil, err
	}
	spec := CollectionSpec{Name: cfg.IndexName, Dimension: embedder.Dimensions(), Metric: metric}
	if err := idx.EnsureCollection(ctx, spec); err != nil {
		_ = idx.Close()
		return nil, err
	}
	if mem, ok := idx.(*MemoryIndex); ok && cfg.SnapshotPath != "" {
		if err := mem.Load(cfg.SnapshotPath); err != nil {
			return nil, fmt.Errorf("load index snapshot: %w", err)
		}
	}
	return idx, nil
}
