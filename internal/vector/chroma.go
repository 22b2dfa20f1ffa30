package vector

import (
	"context"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const chromaSpaceKey = "hnsw:space"

// chromaDistancesInclude asks for distances alongside documents and metadatas;
// an explicit include list otherwise drops them from the response.
const chromaDistancesInclude chromago.Include = "distances"

// ChromaIndex stores records in a Chroma collection. Chunk text is kept as the
// record's document so it comes back with every query.
type ChromaIndex struct {
	client     chromago.Client
	collection chromago.Collection
	spec       CollectionSpec
	embedder   TextEmbedder
	logger     *zap.Logger
}

// NewChromaIndex connects to the Chroma server at address. The embedder backs the
// collection's embedding function, so the client never falls back to its bundled model.
func NewChromaIndex(address string, embedder TextEmbedder, logger *zap.Logger) (*ChromaIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: chroma backend requires an embedder", models.ErrIndexProvisioning)
	}
	opts := []chromago.ClientOption{}
	if address != "" {
		opts = append(opts, chromago.WithBaseURL(address))
	}
	client, err := chromago.NewHTTPClient(opts...)
	if err != nil {
		return nil, models.Wrap(models.ErrIndexProvisioning, "connect to chroma", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromaIndex{client: client, embedder: embedder, logger: logger}, nil
}

// Type returns the index type identifier.
func (c *ChromaIndex) Type() string {
	return string(IndexTypeChroma)
}

// EnsureCollection gets the collection, creating it with the metric's HNSW space when missing.
func (c *ChromaIndex) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexProvisioning, err)
	}
	coll, err := c.client.GetOrCreateCollection(ctx, spec.Name,
		chromago.WithEmbeddingFunctionCreate(chromaEmbeddingFunction{embedder: c.embedder}),
		chromago.WithCollectionMetadataCreate(chromago.NewMetadata(
			chromago.NewStringAttribute(chromaSpaceKey, chromaSpace(spec.Metric)),
			chromago.NewIntAttribute("dimension", int64(spec.Dimension)),
		)),
	)
	if err != nil {
		return models.Wrap(models.ErrIndexProvisioning, "get or create collection "+spec.Name, err)
	}
	c.collection = coll
	c.spec = spec
	c.logger.Debug("chroma collection ready", zap.String("collection", spec.Name))
	return nil
}

// Upsert writes all records in a single call.
func (c *ChromaIndex) Upsert(ctx context.Context, records []models.IndexRecord) error {
	if c.collection == nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, errNotBound)
	}
	if len(records) == 0 {
		return nil
	}
	ids := make([]chromago.DocumentID, len(records))
	texts := make([]string, len(records))
	embs := make([]embeddings.Embedding, len(records))
	metas := make([]chromago.DocumentMetadata, len(records))
	hasMetadata := false
	for i, r := range records {
		if len(r.Values) != c.spec.Dimension {
			return fmt.Errorf("%w: record %s has dimension %d, expected %d",
				models.ErrIndexWrite, r.ID, len(r.Values), c.spec.Dimension)
		}
		ids[i] = chromago.DocumentID(r.ID)
		texts[i] = r.Text()
		embs[i] = embeddings.NewEmbeddingFromFloat32(r.Values)
		attrs := make([]*chromago.MetaAttribute, 0, len(r.Metadata))
		for k, v := range r.Metadata {
			if k == models.MetadataKeyText {
				continue
			}
			attrs = append(attrs, chromago.NewStringAttribute(k, v))
		}
		// Chroma rejects empty metadata dicts; null entries are accepted
		if len(attrs) > 0 {
			metas[i] = chromago.NewDocumentMetadata(attrs...)
			hasMetadata = true
		}
	}
	opts := []chromago.CollectionAddOption{
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
	}
	if hasMetadata {
		opts = append(opts, chromago.WithMetadatas(metas...))
	}
	err := c.collection.Upsert(ctx, opts...)
	if err != nil {
		return models.Wrap(models.ErrIndexWrite, fmt.Sprintf("upsert %d records into %s", len(records), c.spec.Name), err)
	}
	return nil
}

// Query returns the nearest records; Chroma distances are converted to scores.
func (c *ChromaIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.Match, error) {
	if err := ValidateTopK(topK); err != nil {
		return nil, err
	}
	if c.collection == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndexQuery, errNotBound)
	}
	include := []chromago.Include{chromaDistancesInclude}
	if includeMetadata {
		include = append(include, chromago.IncludeDocuments, chromago.IncludeMetadatas)
	}
	results, err := c.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(topK),
		chromago.WithIncludeQuery(include...),
	)
	if err != nil {
		return nil, models.Wrap(models.ErrIndexQuery, "query "+c.spec.Name, err)
	}
	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}
	var distances embeddings.Distances
	if groups := results.GetDistancesGroups(); len(groups) > 0 {
		distances = groups[0]
	}
	var docs chromago.Documents
	if groups := results.GetDocumentsGroups(); len(groups) > 0 {
		docs = groups[0]
	}
	var metas chromago.DocumentMetadatas
	if groups := results.GetMetadatasGroups(); len(groups) > 0 {
		metas = groups[0]
	}
	matches := make([]models.Match, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		match := models.Match{ID: string(id)}
		if i < len(distances) {
			match.Score = chromaScore(c.spec.Metric, float64(distances[i]))
		}
		if includeMetadata {
			match.Metadata = map[string]string{}
			if i < len(metas) {
				copyStringAttributes(match.Metadata, metas[i])
			}
			if i < len(docs) && docs[i] != nil {
				match.Metadata[models.MetadataKeyText] = docs[i].ContentString()
			}
		}
		matches = append(matches, match)
	}
	SortMatches(matches)
	return matches, nil
}

// Count returns the number of records in the collection.
func (c *ChromaIndex) Count(ctx context.Context) (int, error) {
	if c.collection == nil {
		return 0, nil
	}
	n, err := c.collection.Count(ctx)
	if err != nil {
		return 0, models.Wrap(models.ErrIndexQuery, "count "+c.spec.Name, err)
	}
	return n, nil
}

// Close releases the HTTP client.
func (c *ChromaIndex) Close() error {
	return c.client.Close()
}

// copyStringAttributes copies the string-valued attributes of meta into dst.
func copyStringAttributes(dst map[string]string, meta chromago.DocumentMetadata) {
	keyed, ok := meta.(interface{ Keys() []string })
	if !ok {
		return
	}
	for _, k := range keyed.Keys() {
		if v, ok := meta.GetString(k); ok {
			dst[k] = v
		}
	}
}

// chromaEmbeddingFunction lets the Chroma client embed through the configured
// embedder. Records always carry explicit vectors, so it is only a fallback.
type chromaEmbeddingFunction struct {
	embedder TextEmbedder
}

func (f chromaEmbeddingFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	out := make([]embeddings.Embedding, len(texts))
	for i, text := range texts {
		emb, err := f.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

func (f chromaEmbeddingFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	v, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbeddingFromFloat32(v), nil
}

func chromaSpace(m Metric) string {
	switch m {
	case MetricDotProduct:
		return "ip"
	case MetricEuclidean:
		return "l2"
	default:
		return "cosine"
	}
}

// chromaScore maps a Chroma distance onto a larger-is-closer score. Chroma reports
// cosine and ip as 1 - similarity, and l2 as the squared distance.
func chromaScore(m Metric, d float64) float64 {
	if m == MetricEuclidean {
		return DistanceToScore(d)
	}
	return 1 - d
}
