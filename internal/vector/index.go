// Package vector adapts vector index services behind one collection-oriented interface.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Metric is the similarity function a collection is built with.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// ParseMetric accepts the metric names used in configuration.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "cosine", "":
		return MetricCosine, nil
	case "dotproduct", "ip", "dot":
		return MetricDotProduct, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("unknown similarity metric: %s", s)
	}
}

// CollectionSpec names a collection and fixes its dimension and metric.
type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    Metric
}

// Validate checks that spec can be provisioned.
func (s CollectionSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: collection name is required", models.ErrInvalidArgument)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", models.ErrInvalidArgument, s.Dimension)
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return fmt.Errorf("%w: %w", models.ErrInvalidArgument, err)
	}
	return nil
}

// Index stores (id, vector, metadata) records in one collection and answers
// similarity queries against it. EnsureCollection binds the adapter to a
// collection; Upsert and Query fail until it has succeeded.
type Index interface {
	// EnsureCollection creates the collection when missing and is a no-op otherwise.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error
	// Upsert writes all records in one call, overwriting existing ids.
	Upsert(ctx context.Context, records []models.IndexRecord) error
	// Query returns up to topK matches ordered by descending score.
	Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.Match, error)
	// Count returns the number of records in the bound collection.
	Count(ctx context.Context) (int, error)
	Close() error
}

// TextEmbedder is the part of an embedding model the index layer needs: the
// collection dimension and, for Chroma, a server-side embedding function.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ValidateTopK rejects a non-positive result count.
func ValidateTopK(topK int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be a positive integer, got %d", models.ErrInvalidArgument, topK)
	}
	return nil
}

var errNotBound = fmt.Errorf("no collection bound; call EnsureCollection first")
