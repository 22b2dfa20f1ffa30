package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) { return nil, f.err }
func (f failingEmbedder) Dimensions() int                                          { return 8 }
func (f failingEmbedder) Close() error                                             { return nil }

func setupIndex(t *testing.T, e embedding.Embedder, texts ...string) *vector.MemoryIndex {
	t.Helper()
	ctx := context.Background()
	idx := vector.NewMemoryIndex()
	spec := vector.CollectionSpec{Name: "rag-index", Dimension: e.Dimensions(), Metric: vector.MetricCosine}
	if err := idx.EnsureCollection(ctx, spec); err != nil {
		t.Fatal(err)
	}
	records := make([]models.IndexRecord, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		records[i] = models.IndexRecord{
			ID:       fmt.Sprintf("vec_%d", i),
			Values:   v,
			Metadata: map[string]string{models.MetadataKeyText: text},
		}
	}
	if err := idx.Upsert(ctx, records); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestRetriever_Retrieve(t *testing.T) {
	e := embedding.NewMockEmbedder(256)
	idx := setupIndex(t, e, "The sky is blue.", "Grass is green.", "Snow is white.")
	r := NewRetriever(e, idx)

	snippets, err := r.Retrieve(context.Background(), "What color is the sky?", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(snippets) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(snippets))
	}
	if snippets[0] != "The sky is blue." {
		t.Errorf("best snippet = %q", snippets[0])
	}
}

func TestRetriever_MetadataRoundTrip(t *testing.T) {
	e := embedding.NewMockEmbedder(64)
	text := "Exact text, with punctuation; and\nnewlines."
	idx := setupIndex(t, e, text)
	snippets, err := NewRetriever(e, idx).Retrieve(context.Background(), text, 1)
	if err != nil {
		t.Fatal(err)
	}
	if snippets[0] != text {
		t.Errorf("snippet = %q, want %q", snippets[0], text)
	}
}

func TestRetriever_MissingTextIsEmpty(t *testing.T) {
	e := embedding.NewMockEmbedder(16)
	ctx := context.Background()
	idx := vector.NewMemoryIndex()
	_ = idx.EnsureCollection(ctx, vector.CollectionSpec{Name: "rag-index", Dimension: 16, Metric: vector.MetricCosine})
	v, _ := e.Embed(ctx, "anything")
	_ = idx.Upsert(ctx, []models.IndexRecord{{ID: "vec_0", Values: v}})

	snippets, err := NewRetriever(e, idx).Retrieve(ctx, "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(snippets) != 1 || snippets[0] != "" {
		t.Errorf("expected one empty snippet, got %q", snippets)
	}
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	cause := models.Wrap(models.ErrEmbeddingService, "embed", errors.New("connection reset"))
	e := failingEmbedder{err: cause}
	idx := vector.NewMemoryIndex()
	_, err := NewRetriever(e, idx).Retrieve(context.Background(), "q", 5)
	if !errors.Is(err, models.ErrRetrieval) {
		t.Errorf("expected ErrRetrieval, got %v", err)
	}
	if !errors.Is(err, models.ErrEmbeddingService) {
		t.Errorf("cause should be preserved, got %v", err)
	}
}

func TestRetriever_InvalidTopK(t *testing.T) {
	e := embedding.NewMockEmbedder(16)
	idx := setupIndex(t, e, "a b c")
	_, err := NewRetriever(e, idx).Retrieve(context.Background(), "a", -3)
	if !errors.Is(err, models.ErrRetrieval) || !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("expected retrieval error wrapping invalid argument, got %v", err)
	}
}
