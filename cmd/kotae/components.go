package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/conversation"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Store     *storage.SQLiteStorage
	Embedder  embedding.Embedder
	Index     vector.Index
	Generator generation.Generator
	Pipeline  *pipeline.Pipeline
}

// SaveSnapshot writes the memory index to its snapshot path. Remote backends persist on their own.
func (c *Components) SaveSnapshot(cfg *config.Config, logger *zap.Logger) {
	mem, ok := c.Index.(*vector.MemoryIndex)
	if !ok || cfg.Vector.SnapshotPath == "" {
		return
	}
	if err := mem.Save(cfg.Vector.SnapshotPath); err != nil {
		logger.Warn("vector index save failed", zap.String("path", cfg.Vector.SnapshotPath), zap.Error(err))
		return
	}
	logger.Info("vector index saved", zap.String("path", cfg.Vector.SnapshotPath))
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Store = store

	c.Embedder, err = embedding.NewEmbedder(ctx, cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Index, err = vector.Open(ctx, cfg.Vector, c.Embedder, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("backend", cfg.Vector.Backend),
		zap.String("index", cfg.Vector.IndexName),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	c.Generator, err = generation.NewGenerator(ctx, cfg.Generation, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	idx := indexer.NewIndexer(c.Embedder, c.Index, chunker,
		indexer.WithLogger(logger),
		indexer.WithConcurrency(cfg.Ingest.EmbedConcurrency))
	retriever := search.NewRetriever(c.Embedder, c.Index, search.WithLogger(logger))

	c.Pipeline = pipeline.New(idx, retriever, c.Generator,
		conversation.NewState(cfg.Conversation.MaxTurns),
		pipeline.WithLogger(logger),
		pipeline.WithObjectStore(store),
		pipeline.WithTopK(cfg.Retrieval.TopK),
		pipeline.WithWindow(cfg.Conversation.WindowOrDefault()),
		pipeline.WithExtensions(cfg.Ingest.Extensions),
	)
	return c, nil
}
