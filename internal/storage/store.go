// Package storage keeps raw uploads in an object store and reports disk usage.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// ObjectStore persists uploaded documents. The pipeline treats it as a side
// channel: a failed Put never stops an ingestion.
type ObjectStore interface {
	Put(ctx context.Context, id string, doc models.Document) (*models.StoredDocument, error)
	Get(ctx context.Context, id string) (*models.StoredDocument, []byte, error)
	List(ctx context.Context, offset, limit int) ([]*models.StoredDocument, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
