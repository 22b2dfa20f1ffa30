package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoText is returned when a document yields no chunks.
var ErrNoText = errors.New("document has no extractable text")

// Indexer chunks text, embeds every chunk, and upserts the batch into the vector index.
type Indexer struct {
	embedder    embedding.Embedder
	index       vector.Index
	chunker     *Chunker
	concurrency int
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithConcurrency bounds the number of embedding calls in flight for one document.
func WithConcurrency(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// NewIndexer creates an indexer. The index must already be bound to its collection.
func NewIndexer(embedder embedding.Embedder, index vector.Index, chunker *Chunker, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:    embedder,
		index:       index,
		chunker:     chunker,
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexText splits text into chunks, embeds them, and writes one record per chunk
// in a single upsert. Record ids are vec_<sequence index>, so a later document
// overwrites the records of an earlier one with the same indexes.
// Any embedding failure aborts the batch before anything is written.
func (idx *Indexer) IndexText(ctx context.Context, text string) (int, error) {
	chunks, err := idx.chunker.Split(Preprocess(text))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %w", models.ErrExtraction, ErrNoText)
	}
	idx.logger.Debug("indexer chunked text", zap.Int("chunks", len(chunks)))

	vectors, err := idx.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	records := make([]models.IndexRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = models.IndexRecord{
			ID:       RecordID(ch.SequenceIndex),
			Values:   vectors[i],
			Metadata: map[string]string{models.MetadataKeyText: ch.Text},
		}
	}
	if err := idx.index.Upsert(ctx, records); err != nil {
		return 0, err
	}
	idx.logger.Debug("indexer upserted records", zap.Int("records", len(records)))
	return len(records), nil
}

// embedChunks fans out one embedding call per chunk and waits for all of them.
// The first failure cancels the rest.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			v, err := idx.embedder.Embed(gctx, ch.Text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ch.SequenceIndex, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// RecordID returns the index record id for a chunk sequence index.
func RecordID(seq int) string {
	return fmt.Sprintf("vec_%d", seq)
}
