package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/conversation"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

type echoGenerator struct{ err error }

func (g *echoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if strings.Contains(prompt, "The sky is blue") {
		return "Blue.", nil
	}
	return "I don't know.", nil
}

type testServer struct {
	handler   http.Handler
	generator *echoGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "documents.db")
	cfg.Embedding.Dimensions = 128

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	e := embedding.NewMockEmbedder(128)
	idx := vector.NewMemoryIndex()
	spec := vector.CollectionSpec{Name: cfg.Vector.IndexName, Dimension: 128, Metric: vector.MetricCosine}
	if err := idx.EnsureCollection(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	gen := &echoGenerator{}
	p := pipeline.New(
		indexer.NewIndexer(e, idx, indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())),
		search.NewRetriever(e, idx),
		gen,
		conversation.NewState(0),
		pipeline.WithObjectStore(store),
	)
	return &testServer{handler: NewServer(p, idx, cfg, nil).Router(), generator: gen}
}

func (ts *testServer) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func (ts *testServer) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	r := httptest.NewRequest(http.MethodPost, "/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(t, r)
}

func (ts *testServer) query(t *testing.T, q string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(models.QueryRequest{Query: q})
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return ts.do(t, r)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decode(t, w, &out)
	if out["status"] != "healthy" {
		t.Errorf("body = %v", out)
	}
}

func TestUploadQueryConversation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.upload(t, "colors.txt", "The sky is blue. Grass is green.")
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	var up models.UploadResponse
	decode(t, w, &up)
	if up.Message != uploadMessage || up.Chunks != 1 || up.DocumentID == "" {
		t.Errorf("upload response = %+v", up)
	}

	w = ts.query(t, "What color is the sky?")
	if w.Code != http.StatusOK {
		t.Fatalf("query status %d: %s", w.Code, w.Body.String())
	}
	var qr models.QueryResponse
	decode(t, w, &qr)
	if qr.Response != "Blue." {
		t.Errorf("response = %q", qr.Response)
	}

	w = ts.do(t, httptest.NewRequest(http.MethodGet, "/conversation", nil))
	var hist models.HistoryResponse
	decode(t, w, &hist)
	if len(hist.History) != 1 || hist.History[0].Answer != "Blue." {
		t.Errorf("history = %+v", hist.History)
	}

	w = ts.do(t, httptest.NewRequest(http.MethodDelete, "/conversation", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("clear status %d", w.Code)
	}
	w = ts.do(t, httptest.NewRequest(http.MethodGet, "/conversation", nil))
	if !strings.Contains(w.Body.String(), `"history":[]`) {
		t.Errorf("history after clear = %s", w.Body.String())
	}
}

func TestUploadClearsConversation(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "a.txt", "The sky is blue.")
	ts.query(t, "What color is the sky?")
	ts.upload(t, "b.txt", "Grass is green.")

	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/conversation", nil))
	var hist models.HistoryResponse
	decode(t, w, &hist)
	if len(hist.History) != 0 {
		t.Errorf("history = %+v", hist.History)
	}
}

func TestUploadErrors(t *testing.T) {
	ts := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not multipart"))
	if w := ts.do(t, r); w.Code != http.StatusBadRequest {
		t.Errorf("non-multipart: got %d", w.Code)
	}
	if w := ts.upload(t, "blank.txt", "   "); w.Code != http.StatusBadRequest {
		t.Errorf("blank document: got %d", w.Code)
	}
	if w := ts.upload(t, "image.png", "binary"); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported type: got %d", w.Code)
	}
}

func TestQueryErrors(t *testing.T) {
	ts := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{"))
	if w := ts.do(t, r); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: got %d", w.Code)
	}
	if w := ts.query(t, "  "); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d", w.Code)
	}

	ts.generator.err = models.Wrap(models.ErrGenerationService, "generate", errors.New("throttled"))
	w := ts.query(t, "What color is the sky?")
	if w.Code != http.StatusBadGateway {
		t.Errorf("generation failure: got %d", w.Code)
	}
	var out map[string]string
	decode(t, w, &out)
	if !strings.Contains(out["error"], "throttled") {
		t.Errorf("error body = %v", out)
	}
}

func TestDocumentsAndStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, "colors.txt", "The sky is blue. Grass is green.")
	ts.query(t, "What color is the sky?")

	w := ts.do(t, httptest.NewRequest(http.MethodGet, "/documents", nil))
	var docs struct {
		Documents []models.StoredDocument `json:"documents"`
	}
	decode(t, w, &docs)
	if len(docs.Documents) != 1 || docs.Documents[0].Filename != "colors.txt" {
		t.Errorf("documents = %+v", docs.Documents)
	}

	w = ts.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	var st models.StatusResponse
	decode(t, w, &st)
	if st.Documents != 1 || st.Records != 1 || st.Turns != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.IndexName != "rag-index" || st.VectorBackend != "memory" || st.Dimensions != 128 {
		t.Errorf("status config = %+v", st)
	}
}

func TestGetDocument(t *testing.T) {
	ts := newTestServer(t)
	w := ts.upload(t, "sky notes.txt", "The sky is blue.")
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var up models.UploadResponse
	decode(t, w, &up)

	w = ts.do(t, httptest.NewRequest(http.MethodGet, "/documents/"+up.DocumentID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "The sky is blue." {
		t.Errorf("body = %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="sky notes.txt"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("Content-Type = %q", got)
	}

	w = ts.do(t, httptest.NewRequest(http.MethodGet, "/documents/no-such-id", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidArgument, http.StatusBadRequest},
		{fmt.Errorf("read: %w", models.ErrExtraction), http.StatusBadRequest},
		{fmt.Errorf("%w: d1", storage.ErrNotFound), http.StatusNotFound},
		{models.Wrap(models.ErrIndexProvisioning, "ensure", errors.New("x")), http.StatusServiceUnavailable},
		{models.Wrap(models.ErrEmbeddingService, "embed", errors.New("x")), http.StatusBadGateway},
		{models.Wrap(models.ErrRetrieval, "retrieve", models.ErrIndexQuery), http.StatusBadGateway},
		{models.ErrIndexWrite, http.StatusBadGateway},
		{models.ErrGenerationService, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
