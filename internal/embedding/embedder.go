// Package embedding turns text into fixed-length vectors through a remote model.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Embedder produces vector embeddings for text. Implementations do not cache:
// identical input is re-embedded on every call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// checkDimensions rejects vectors whose length differs from the configured dimension.
func checkDimensions(v []float32, want int) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: response is missing the embedding vector", models.ErrEmbeddingService)
	}
	if want > 0 && len(v) != want {
		return fmt.Errorf("%w: got %d dimensions, want %d", models.ErrEmbeddingService, len(v), want)
	}
	return nil
}
