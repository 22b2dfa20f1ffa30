// Package pipeline wires chunking, embedding, retrieval, and generation into the
// two flows the service exposes: ingesting a document and answering a question.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/conversation"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Pipeline owns the components of both flows. One value is built at startup and
// shared by every request handler.
type Pipeline struct {
	indexer      *indexer.Indexer
	retriever    *search.Retriever
	generator    generation.Generator
	conversation *conversation.State
	extractor    *extract.Extractor
	store        storage.ObjectStore
	topK         int
	window       int
	extensions   []string
	logger       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithObjectStore keeps a copy of every upload. Store failures are logged and ignored.
func WithObjectStore(s storage.ObjectStore) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithTopK sets how many snippets are retrieved per question.
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithWindow sets how many recent turns are included in the prompt.
func WithWindow(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.window = n
		}
	}
}

// WithExtensions restricts ingestion to the given file extensions.
func WithExtensions(exts []string) Option {
	return func(p *Pipeline) { p.extensions = exts }
}

// New creates a pipeline.
func New(
	idx *indexer.Indexer,
	retriever *search.Retriever,
	generator generation.Generator,
	conv *conversation.State,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		indexer:      idx,
		retriever:    retriever,
		generator:    generator,
		conversation: conv,
		extractor:    extract.NewExtractor(),
		topK:         config.DefaultTopK,
		window:       config.DefaultWindow,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest stores the upload, extracts its text, and indexes its chunks. The
// conversation history is cleared when the attempt ends, whether it succeeded or not,
// because earlier answers may refer to index contents this upload replaced.
func (p *Pipeline) Ingest(ctx context.Context, doc models.Document) (*models.IngestResult, error) {
	defer p.conversation.Clear()

	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: document %q is empty", models.ErrInvalidArgument, doc.Filename)
	}
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	if !p.extensionAllowed(ext) {
		return nil, fmt.Errorf("%w: extension %q not in allowed list", models.ErrInvalidArgument, ext)
	}

	id := uuid.New().String()
	log := p.logger.With(zap.String("document_id", id), zap.String("filename", doc.Filename))
	if p.store != nil {
		if _, err := p.store.Put(ctx, id, doc); err != nil {
			log.Warn("failed to store upload", zap.Error(err))
		}
	}

	text, err := p.extractor.ExtractBytes(doc.Content, ext)
	if err != nil {
		return nil, err
	}
	n, err := p.indexer.IndexText(ctx, text)
	if err != nil {
		log.Warn("ingestion failed", zap.Error(err))
		return nil, err
	}
	log.Info("document ingested", zap.Int("chunks", n))
	return &models.IngestResult{DocumentID: id, Filename: doc.Filename, Chunks: n}, nil
}

// IngestFile reads path and ingests it under its base name.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*models.IngestResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.Ingest(ctx, models.Document{Filename: filepath.Base(path), Content: content})
}

// Ask answers question from the indexed documents and the recent conversation,
// then records the turn. A failure at any step leaves the history unchanged.
func (p *Pipeline) Ask(ctx context.Context, question string) (string, error) {
	req := models.QueryRequest{Query: question}
	if err := req.Validate(); err != nil {
		return "", err
	}
	snippets, err := p.retriever.Retrieve(ctx, req.Query, p.topK)
	if err != nil {
		return "", err
	}
	text := prompt.Build(snippets, req.Query, p.conversation.Recent(p.window))
	answer, err := p.generator.Generate(ctx, text)
	if err != nil {
		return "", err
	}
	p.conversation.Append(req.Query, answer)
	p.logger.Debug("question answered",
		zap.String("question", utils.Truncate(req.Query, 60)),
		zap.Int("snippets", len(snippets)))
	return answer, nil
}

// History returns every turn of the conversation, oldest first.
func (p *Pipeline) History() []models.ConversationTurn {
	return p.conversation.All()
}

// ClearHistory empties the conversation.
func (p *Pipeline) ClearHistory() {
	p.conversation.Clear()
}

// Turns returns the number of turns in the conversation.
func (p *Pipeline) Turns() int {
	return p.conversation.Len()
}

// extensionAllowed checks ext against the configured list, or against the
// extractable formats when no list is set. A missing extension is left to
// content sniffing in the extractor.
func (p *Pipeline) extensionAllowed(ext string) bool {
	if len(p.extensions) == 0 {
		return ext == "" || extract.Supported(ext)
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range p.extensions {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// Documents lists stored uploads, newest first. It returns nothing when no object
// store is configured.
func (p *Pipeline) Documents(ctx context.Context, offset, limit int) ([]*models.StoredDocument, error) {
	if p.store == nil {
		return nil, nil
	}
	return p.store.List(ctx, offset, limit)
}

// Document returns a stored upload and its original bytes. It returns an error
// wrapping storage.ErrNotFound when the id is unknown or no object store is configured.
func (p *Pipeline) Document(ctx context.Context, id string) (*models.StoredDocument, []byte, error) {
	if p.store == nil {
		return nil, nil, fmt.Errorf("%w: no object store configured", storage.ErrNotFound)
	}
	return p.store.Get(ctx, id)
}

// DocumentCount returns the number of stored uploads.
func (p *Pipeline) DocumentCount(ctx context.Context) (int64, error) {
	if p.store == nil {
		return 0, nil
	}
	return p.store.Count(ctx)
}
