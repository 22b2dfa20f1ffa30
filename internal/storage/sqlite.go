package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when no stored document has the requested id.
var ErrNotFound = errors.New("document not found")

// SQLiteStorage implements ObjectStore with document bodies as BLOBs.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		object_key TEXT NOT NULL,
		filename TEXT NOT NULL,
		content BLOB NOT NULL,
		size INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
	CREATE INDEX IF NOT EXISTS idx_documents_checksum ON documents(checksum);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Put stores doc under id. Storing the same id again replaces the previous upload.
func (s *SQLiteStorage) Put(ctx context.Context, id string, doc models.Document) (*models.StoredDocument, error) {
	stored := &models.StoredDocument{
		ID:        id,
		Key:       fileid.ObjectKey(doc.Filename),
		Filename:  doc.Filename,
		Size:      int64(len(doc.Content)),
		Checksum:  fileid.Checksum(doc.Content),
		CreatedAt: time.Now().UTC(),
	}
	content := doc.Content
	if content == nil {
		content = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, object_key, filename, content, size, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Key, stored.Filename, content, stored.Size, stored.Checksum, stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store document %s: %w", id, err)
	}
	return stored, nil
}

// Get returns a stored document and its content.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*models.StoredDocument, []byte, error) {
	var doc models.StoredDocument
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, object_key, filename, content, size, checksum, created_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Key, &doc.Filename, &content, &doc.Size, &doc.Checksum, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}
	return &doc, content, nil
}

// List returns stored documents without content, newest first.
func (s *SQLiteStorage) List(ctx context.Context, offset, limit int) ([]*models.StoredDocument, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, object_key, filename, size, checksum, created_at
		 FROM documents ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.StoredDocument
	for rows.Next() {
		var doc models.StoredDocument
		if err := rows.Scan(&doc.ID, &doc.Key, &doc.Filename, &doc.Size, &doc.Checksum, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// Count returns the number of stored documents.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
