package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/conversation"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// scriptedGenerator records prompts and answers with a fixed reply.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *scriptedGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// switchEmbedder delegates to the mock embedder until broken is set.
type switchEmbedder struct {
	inner  embedding.Embedder
	broken bool
}

func (s *switchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.broken {
		return nil, models.Wrap(models.ErrEmbeddingService, "embed", errors.New("connection refused"))
	}
	return s.inner.Embed(ctx, text)
}
func (s *switchEmbedder) Dimensions() int { return s.inner.Dimensions() }
func (s *switchEmbedder) Close() error    { return nil }

type failingStore struct{ storage.ObjectStore }

func (failingStore) Put(ctx context.Context, id string, doc models.Document) (*models.StoredDocument, error) {
	return nil, errors.New("bucket unavailable")
}

type fixture struct {
	pipeline  *Pipeline
	embedder  *switchEmbedder
	index     *vector.MemoryIndex
	generator *scriptedGenerator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	e := &switchEmbedder{inner: embedding.NewMockEmbedder(256)}
	idx := vector.NewMemoryIndex()
	spec := vector.CollectionSpec{Name: "rag-index", Dimension: 256, Metric: vector.MetricCosine}
	if err := idx.EnsureCollection(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	gen := &scriptedGenerator{answer: "The sky is blue."}
	p := New(
		indexer.NewIndexer(e, idx, indexer.NewChunker(20, 0)),
		search.NewRetriever(e, idx),
		gen,
		conversation.NewState(0),
		opts...,
	)
	return &fixture{pipeline: p, embedder: e, index: idx, generator: gen}
}

var _ generation.Generator = (*scriptedGenerator)(nil)

func TestPipeline_IngestThenAsk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.pipeline.Ingest(ctx, models.Document{
		Filename: "colors.txt",
		Content:  []byte("The sky is blue. Grass is green."),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Chunks < 2 || res.DocumentID == "" || res.Filename != "colors.txt" {
		t.Errorf("result = %+v", res)
	}

	answer, err := f.pipeline.Ask(ctx, "What color is the sky?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "The sky is blue." {
		t.Errorf("answer = %q", answer)
	}
	prompt := f.generator.lastPrompt()
	if !strings.Contains(prompt, "Context:\nThe sky is blue") {
		t.Errorf("best snippet should lead the context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: What color is the sky?") {
		t.Errorf("prompt is missing the question:\n%s", prompt)
	}
	history := f.pipeline.History()
	if len(history) != 1 || history[0].Question != "What color is the sky?" || history[0].Answer != answer {
		t.Errorf("history = %+v", history)
	}
}

func TestPipeline_AskIncludesRecentTurns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithWindow(2))
	if _, err := f.pipeline.Ingest(ctx, models.Document{Filename: "a.txt", Content: []byte("The sky is blue.")}); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"first question", "second question", "third question"} {
		if _, err := f.pipeline.Ask(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.pipeline.Ask(ctx, "fourth question"); err != nil {
		t.Fatal(err)
	}
	prompt := f.generator.lastPrompt()
	if strings.Contains(prompt, "Q: first question") {
		t.Errorf("turn outside the window was included:\n%s", prompt)
	}
	for _, q := range []string{"second question", "third question"} {
		if !strings.Contains(prompt, "Q: "+q) {
			t.Errorf("prompt is missing %q:\n%s", q, prompt)
		}
	}
	if f.pipeline.Turns() != 4 {
		t.Errorf("Turns() = %d", f.pipeline.Turns())
	}
}

func TestPipeline_IngestClearsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.pipeline.Ingest(ctx, models.Document{Filename: "a.txt", Content: []byte("The sky is blue.")}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.Ask(ctx, "What color is the sky?"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.pipeline.Ingest(ctx, models.Document{Filename: "b.txt", Content: []byte("Grass is green.")}); err != nil {
		t.Fatal(err)
	}
	if n := len(f.pipeline.History()); n != 0 {
		t.Errorf("history has %d turns after a successful ingestion", n)
	}

	if _, err := f.pipeline.Ask(ctx, "What color is grass?"); err != nil {
		t.Fatal(err)
	}
	f.embedder.broken = true
	_, err := f.pipeline.Ingest(ctx, models.Document{Filename: "c.txt", Content: []byte("Snow is white.")})
	if !errors.Is(err, models.ErrEmbeddingService) {
		t.Fatalf("err = %v, want ErrEmbeddingService", err)
	}
	if n := len(f.pipeline.History()); n != 0 {
		t.Errorf("history has %d turns after a failed ingestion", n)
	}
}

func TestPipeline_AskFailuresLeaveHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.pipeline.Ingest(ctx, models.Document{Filename: "a.txt", Content: []byte("The sky is blue.")}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.pipeline.Ask(ctx, "What color is the sky?"); err != nil {
		t.Fatal(err)
	}

	f.embedder.broken = true
	_, err := f.pipeline.Ask(ctx, "And the grass?")
	if !errors.Is(err, models.ErrRetrieval) {
		t.Errorf("embedding failure: err = %v, want ErrRetrieval", err)
	}
	f.embedder.broken = false

	f.generator.err = models.Wrap(models.ErrGenerationService, "generate", errors.New("503"))
	_, err = f.pipeline.Ask(ctx, "And the grass?")
	if !errors.Is(err, models.ErrGenerationService) {
		t.Errorf("generation failure: err = %v, want ErrGenerationService", err)
	}

	if n := len(f.pipeline.History()); n != 1 {
		t.Errorf("history has %d turns, want 1", n)
	}
}

func TestPipeline_AskInvalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Ask(context.Background(), "   ")
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
	if len(f.generator.prompts) != 0 {
		t.Error("generator should not be called")
	}
}

func TestPipeline_AskEmptyIndex(t *testing.T) {
	f := newFixture(t)
	answer, err := f.pipeline.Ask(context.Background(), "Anything?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer == "" {
		t.Error("expected an answer with empty context")
	}
	if !strings.Contains(f.generator.lastPrompt(), "Context:\n\n\nQuestion:") {
		t.Errorf("prompt with no snippets:\n%s", f.generator.lastPrompt())
	}
}

func TestPipeline_IngestRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithExtensions([]string{".pdf", ".txt"}))

	_, err := f.pipeline.Ingest(ctx, models.Document{Filename: "empty.txt"})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty content: err = %v", err)
	}
	_, err = f.pipeline.Ingest(ctx, models.Document{Filename: "sheet.xlsx", Content: []byte("x")})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("disallowed extension: err = %v", err)
	}
	_, err = f.pipeline.Ingest(ctx, models.Document{Filename: "blank.txt", Content: []byte("   \n ")})
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("no text: err = %v", err)
	}
}

func TestPipeline_ObjectStoreSideChannel(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "documents.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	f := newFixture(t, WithObjectStore(store))
	res, err := f.pipeline.Ingest(ctx, models.Document{Filename: "a.txt", Content: []byte("The sky is blue.")})
	if err != nil {
		t.Fatal(err)
	}
	docs, err := f.pipeline.Documents(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != res.DocumentID || docs[0].Key != "pdfs/a.txt" {
		t.Errorf("documents = %+v", docs)
	}
	if n, _ := f.pipeline.DocumentCount(ctx); n != 1 {
		t.Errorf("DocumentCount = %d", n)
	}

	broken := newFixture(t, WithObjectStore(failingStore{}))
	if _, err := broken.pipeline.Ingest(ctx, models.Document{Filename: "a.txt", Content: []byte("The sky is blue.")}); err != nil {
		t.Errorf("store failure should not fail ingestion: %v", err)
	}
}

func TestPipeline_IngestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# Notes\n\nThe sky is blue."), 0o644); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t)
	res, err := f.pipeline.IngestFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Filename != "notes.md" || res.Chunks == 0 {
		t.Errorf("result = %+v", res)
	}
	if _, err := f.pipeline.IngestFile(context.Background(), filepath.Join(dir, "missing.md")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPipeline_DefaultExtensionsFollowExtractor(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "documents.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	f := newFixture(t, WithObjectStore(store))

	_, err = f.pipeline.Ingest(ctx, models.Document{Filename: "report.docx", Content: []byte("PK")})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("unextractable extension: err = %v", err)
	}
	if n, _ := f.pipeline.DocumentCount(ctx); n != 0 {
		t.Errorf("rejected upload was stored (%d documents)", n)
	}
	if _, err := f.pipeline.Ingest(ctx, models.Document{Filename: "NOTES.MD", Content: []byte("The sky is blue.")}); err != nil {
		t.Errorf("upper-case supported extension: %v", err)
	}
	// No extension: the extractor decides from the content.
	_, err = f.pipeline.Ingest(ctx, models.Document{Filename: "README", Content: []byte("The sky is blue.")})
	if !errors.Is(err, models.ErrExtraction) {
		t.Errorf("no extension: err = %v", err)
	}
}

func TestPipeline_Document(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "documents.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	f := newFixture(t, WithObjectStore(store))
	res, err := f.pipeline.Ingest(ctx, models.Document{Filename: "a.txt", Content: []byte("The sky is blue.")})
	if err != nil {
		t.Fatal(err)
	}
	doc, content, err := f.pipeline.Document(ctx, res.DocumentID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.Filename != "a.txt" || string(content) != "The sky is blue." {
		t.Errorf("document = %+v, content %q", doc, content)
	}
	if _, _, err := f.pipeline.Document(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}

	bare := newFixture(t)
	if _, _, err := bare.pipeline.Document(ctx, res.DocumentID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("no store: expected ErrNotFound, got %v", err)
	}
}
