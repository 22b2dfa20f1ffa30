package vector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"
)

// Milvus field names for the collection schema.
const (
	milvusFieldID     = "id"
	milvusFieldText   = "text"
	milvusFieldVector = "vector"

	milvusMaxIDLength   = 128
	milvusMaxTextLength = 65535
)

// MilvusIndex stores records in a Milvus collection with an HNSW index.
type MilvusIndex struct {
	client *milvusclient.Client
	spec   CollectionSpec
	bound  bool
	logger *zap.Logger
}

// NewMilvusIndex connects to the Milvus server at address.
func NewMilvusIndex(ctx context.Context, address, apiKey string, logger *zap.Logger) (*MilvusIndex, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: milvus address is required", models.ErrIndexProvisioning)
	}
	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: address,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, models.Wrap(models.ErrIndexProvisioning, "connect to milvus", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilvusIndex{client: client, logger: logger}, nil
}

// Type returns the index type identifier.
func (m *MilvusIndex) Type() string {
	return string(IndexTypeMilvus)
}

// EnsureCollection creates the collection, its vector index, and loads it when the
// collection does not exist. An existing collection is checked for a matching dimension
// and loaded.
func (m *MilvusIndex) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexProvisioning, err)
	}
	has, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(spec.Name))
	if err != nil {
		return models.Wrap(models.ErrIndexProvisioning, "check collection "+spec.Name, err)
	}
	if has {
		if err := m.checkDimension(ctx, spec); err != nil {
			return err
		}
	} else {
		m.logger.Info("creating milvus collection",
			zap.String("collection", spec.Name), zap.Int("dimension", spec.Dimension))
		if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(spec.Name, milvusSchema(spec))); err != nil {
			return models.Wrap(models.ErrIndexProvisioning, "create collection "+spec.Name, err)
		}
		idx := index.NewHNSWIndex(milvusMetric(spec.Metric), 16, 200)
		task, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(spec.Name, milvusFieldVector, idx))
		if err != nil {
			return models.Wrap(models.ErrIndexProvisioning, "create index on "+spec.Name, err)
		}
		if err := task.Await(ctx); err != nil {
			return models.Wrap(models.ErrIndexProvisioning, "await index on "+spec.Name, err)
		}
	}
	load, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(spec.Name))
	if err != nil {
		return models.Wrap(models.ErrIndexProvisioning, "load collection "+spec.Name, err)
	}
	if err := load.Await(ctx); err != nil {
		return models.Wrap(models.ErrIndexProvisioning, "await load of "+spec.Name, err)
	}
	m.spec = spec
	m.bound = true
	return nil
}

func (m *MilvusIndex) checkDimension(ctx context.Context, spec CollectionSpec) error {
	coll, err := m.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(spec.Name))
	if err != nil {
		return models.Wrap(models.ErrIndexProvisioning, "describe collection "+spec.Name, err)
	}
	if coll == nil || coll.Schema == nil {
		return nil
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != milvusFieldVector {
			continue
		}
		dim, err := strconv.Atoi(f.TypeParams["dim"])
		if err == nil && dim != spec.Dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, expected %d",
				models.ErrIndexProvisioning, spec.Name, dim, spec.Dimension)
		}
	}
	return nil
}

// Upsert writes records column-wise in a single call.
func (m *MilvusIndex) Upsert(ctx context.Context, records []models.IndexRecord) error {
	if !m.bound {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, errNotBound)
	}
	if len(records) == 0 {
		return nil
	}
	ids, texts, vectors, err := milvusColumns(records, m.spec.Dimension)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, err)
	}
	opt := milvusclient.NewColumnBasedInsertOption(m.spec.Name).
		WithVarcharColumn(milvusFieldID, ids).
		WithVarcharColumn(milvusFieldText, texts).
		WithFloatVectorColumn(milvusFieldVector, m.spec.Dimension, vectors)
	if _, err := m.client.Upsert(ctx, opt); err != nil {
		return models.Wrap(models.ErrIndexWrite, fmt.Sprintf("upsert %d records into %s", len(records), m.spec.Name), err)
	}
	return nil
}

// Query runs an ANN search with strong consistency so freshly upserted records are visible.
func (m *MilvusIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.Match, error) {
	if err := ValidateTopK(topK); err != nil {
		return nil, err
	}
	if !m.bound {
		return nil, fmt.Errorf("%w: %w", models.ErrIndexQuery, errNotBound)
	}
	opt := milvusclient.NewSearchOption(m.spec.Name, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(milvusFieldVector).
		WithConsistencyLevel(entity.ClStrong)
	if includeMetadata {
		opt = opt.WithOutputFields(milvusFieldText)
	}
	results, err := m.client.Search(ctx, opt)
	if err != nil {
		return nil, models.Wrap(models.ErrIndexQuery, "search "+m.spec.Name, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	rs := results[0]
	if rs.Err != nil {
		return nil, models.Wrap(models.ErrIndexQuery, "search "+m.spec.Name, rs.Err)
	}
	matches := make([]models.Match, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.GetAsString(i)
		if err != nil {
			return nil, models.Wrap(models.ErrIndexQuery, "read result id", err)
		}
		var score float64
		if i < len(rs.Scores) {
			score = milvusScore(m.spec.Metric, rs.Scores[i])
		}
		match := models.Match{ID: id, Score: score}
		if includeMetadata {
			if col := rs.GetColumn(milvusFieldText); col != nil {
				if text, err := col.GetAsString(i); err == nil {
					match.Metadata = map[string]string{models.MetadataKeyText: text}
				}
			}
		}
		matches = append(matches, match)
	}
	SortMatches(matches)
	return matches, nil
}

// Count returns the row count of the bound collection.
func (m *MilvusIndex) Count(ctx context.Context) (int, error) {
	if !m.bound {
		return 0, nil
	}
	rs, err := m.client.Query(ctx, milvusclient.NewQueryOption(m.spec.Name).
		WithOutputFields("count(*)").
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, models.Wrap(models.ErrIndexQuery, "count "+m.spec.Name, err)
	}
	col := rs.GetColumn("count(*)")
	if col == nil {
		return 0, nil
	}
	n, err := col.GetAsInt64(0)
	if err != nil {
		return 0, models.Wrap(models.ErrIndexQuery, "read count", err)
	}
	return int(n), nil
}

// Close disconnects from Milvus.
func (m *MilvusIndex) Close() error {
	return m.client.Close(context.Background())
}

func milvusSchema(spec CollectionSpec) *entity.Schema {
	return &entity.Schema{
		CollectionName: spec.Name,
		Description:    "document chunks for retrieval",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": strconv.Itoa(milvusMaxIDLength)},
			},
			{
				Name:       milvusFieldText,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": strconv.Itoa(milvusMaxTextLength)},
			},
			{
				Name:       milvusFieldVector,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(spec.Dimension)},
			},
		},
	}
}

// milvusColumns splits records into the three column slices of the schema.
func milvusColumns(records []models.IndexRecord, dim int) (ids, texts []string, vectors [][]float32, err error) {
	ids = make([]string, len(records))
	texts = make([]string, len(records))
	vectors = make([][]float32, len(records))
	for i, r := range records {
		if len(r.Values) != dim {
			return nil, nil, nil, fmt.Errorf("record %s has dimension %d, expected %d", r.ID, len(r.Values), dim)
		}
		if len(r.ID) > milvusMaxIDLength {
			return nil, nil, nil, fmt.Errorf("record id %q exceeds %d bytes", r.ID, milvusMaxIDLength)
		}
		ids[i] = r.ID
		texts[i] = r.Text()
		vectors[i] = r.Values
	}
	return ids, texts, vectors, nil
}

func milvusMetric(m Metric) entity.MetricType {
	switch m {
	case MetricDotProduct:
		return entity.IP
	case MetricEuclidean:
		return entity.L2
	default:
		return entity.COSINE
	}
}

// milvusScore converts a raw Milvus score so that larger always means closer.
func milvusScore(m Metric, raw float32) float64 {
	if m == MetricEuclidean {
		return DistanceToScore(float64(raw))
	}
	return float64(raw)
}
