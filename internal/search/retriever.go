// Package search retrieves the stored passages most similar to a question.
package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Retriever embeds a question and looks up the nearest chunks.
type Retriever struct {
	embedder embedding.Embedder
	index    vector.Index
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever over an index already bound to its collection.
func NewRetriever(embedder embedding.Embedder, index vector.Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{embedder: embedder, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the texts of the topK best matches for query, best first.
// A match without text metadata yields "". Any failure is a retrieval error
// wrapping the embedding or index error that caused it.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	matches, err := r.RetrieveMatches(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	snippets := make([]string, len(matches))
	for i, m := range matches {
		snippets[i] = m.Text()
	}
	return snippets, nil
}

// RetrieveMatches is Retrieve but keeps ids and scores. A topK of 0 uses the default of 5.
func (r *Retriever) RetrieveMatches(ctx context.Context, query string, topK int) ([]models.Match, error) {
	if topK == 0 {
		topK = config.DefaultTopK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query %q: %w", models.ErrRetrieval, utils.Truncate(query, 40), err)
	}
	matches, err := r.index.Query(ctx, vec, topK, true)
	if err != nil {
		return nil, fmt.Errorf("%w: query index: %w", models.ErrRetrieval, err)
	}
	r.logger.Debug("retrieved matches",
		zap.String("query", utils.Truncate(query, 60)),
		zap.Int("top_k", topK),
		zap.Int("matches", len(matches)))
	return matches, nil
}
