// Package models defines the data types shared by ingestion, retrieval, and the HTTP API.
package models

import "time"

// MetadataKeyText is the metadata key under which a chunk's source text is stored in the index.
const MetadataKeyText = "text"

// Document is an uploaded file. It lives only for the duration of one ingestion.
type Document struct {
	Filename string `json:"filename"`
	Content  []byte `json:"-"`
}

// Chunk is a contiguous slice of a document's extracted text.
type Chunk struct {
	Text          string `json:"text"`
	SequenceIndex int    `json:"sequence_index"`
}

// IndexRecord is one entry written to the vector index.
type IndexRecord struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Text returns the chunk text carried in the record's metadata, or "".
func (r IndexRecord) Text() string {
	return r.Metadata[MetadataKeyText]
}

// StoredDocument describes a raw upload kept in the object store.
type StoredDocument struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestResult summarizes one completed ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Chunks     int    `json:"chunks"`
}
