package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// countingIndex records how many upsert calls reach the memory index.
type countingIndex struct {
	*vector.MemoryIndex
	upserts int
}

func (c *countingIndex) Upsert(ctx context.Context, records []models.IndexRecord) error {
	c.upserts++
	return c.MemoryIndex.Upsert(ctx, records)
}

// flakyEmbedder fails on the call whose text contains failOn.
type flakyEmbedder struct {
	inner  embedding.Embedder
	failOn string
	calls  atomic.Int32
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, fmt.Errorf("%w: throttled", models.ErrEmbeddingService)
	}
	return f.inner.Embed(ctx, text)
}
func (f *flakyEmbedder) Dimensions() int { return f.inner.Dimensions() }
func (f *flakyEmbedder) Close() error    { return nil }

func newTestIndex(t *testing.T, dims int) *countingIndex {
	t.Helper()
	idx := &countingIndex{MemoryIndex: vector.NewMemoryIndex()}
	spec := vector.CollectionSpec{Name: "rag-index", Dimension: dims, Metric: vector.MetricCosine}
	if err := idx.EnsureCollection(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestIndexText_WritesOneRecordPerChunk(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewMockEmbedder(64)
	idx := newTestIndex(t, 64)
	ix := NewIndexer(e, idx, NewChunker(50, 20), WithConcurrency(2))

	n, err := ix.IndexText(ctx, numberedWords(60))
	if err != nil {
		t.Fatalf("IndexText: %v", err)
	}
	if n < 2 {
		t.Fatalf("indexed %d chunks, want several", n)
	}
	if idx.upserts != 1 {
		t.Errorf("upsert called %d times, want 1", idx.upserts)
	}
	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != n {
		t.Errorf("index holds %d records, want %d", count, n)
	}

	q, err := e.Embed(ctx, "w000 w001")
	if err != nil {
		t.Fatal(err)
	}
	matches, err := idx.Query(ctx, q, n, true)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, m := range matches {
		seen[m.ID] = true
		if m.Text() == "" {
			t.Errorf("record %s has no text metadata", m.ID)
		}
	}
	for i := 0; i < n; i++ {
		if !seen[RecordID(i)] {
			t.Errorf("missing record %s", RecordID(i))
		}
	}
}

func TestIndexText_EmbeddingFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	e := &flakyEmbedder{inner: embedding.NewMockEmbedder(64), failOn: "w040"}
	idx := newTestIndex(t, 64)
	ix := NewIndexer(e, idx, NewChunker(50, 20))

	_, err := ix.IndexText(ctx, numberedWords(60))
	if !errors.Is(err, models.ErrEmbeddingService) {
		t.Fatalf("err = %v, want ErrEmbeddingService", err)
	}
	if idx.upserts != 0 {
		t.Errorf("upsert called %d times after a failed embedding", idx.upserts)
	}
	if count, _ := idx.Count(ctx); count != 0 {
		t.Errorf("index holds %d records", count)
	}
}

func TestIndexText_NoText(t *testing.T) {
	e := &flakyEmbedder{inner: embedding.NewMockEmbedder(16)}
	idx := newTestIndex(t, 16)
	ix := NewIndexer(e, idx, NewChunker(0, -1))

	_, err := ix.IndexText(context.Background(), " \r\n\x00 ")
	if !errors.Is(err, models.ErrExtraction) || !errors.Is(err, ErrNoText) {
		t.Fatalf("err = %v, want ErrExtraction and ErrNoText", err)
	}
	if e.calls.Load() != 0 {
		t.Errorf("embedder called %d times", e.calls.Load())
	}
	if idx.upserts != 0 {
		t.Errorf("upsert called %d times", idx.upserts)
	}
}

func TestIndexText_OverwritesBySequence(t *testing.T) {
	ctx := context.Background()
	e := embedding.NewMockEmbedder(32)
	idx := newTestIndex(t, 32)
	ix := NewIndexer(e, idx, NewChunker(1000, 200))

	if _, err := ix.IndexText(ctx, "The sky is blue."); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.IndexText(ctx, "Grass is green."); err != nil {
		t.Fatal(err)
	}
	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("index holds %d records, want 1", count)
	}
	q, _ := e.Embed(ctx, "grass")
	matches, err := idx.Query(ctx, q, 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ID != "vec_0" || matches[0].Text() != "Grass is green." {
		t.Errorf("matches = %+v", matches)
	}
}

func TestRecordID(t *testing.T) {
	if got := RecordID(7); got != "vec_7" {
		t.Errorf("RecordID(7) = %q", got)
	}
}
