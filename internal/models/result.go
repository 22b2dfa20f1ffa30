package models

// Match is one result of a similarity query. Higher Score means more similar.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Text returns the chunk text carried in the match metadata, or "" when absent.
func (m Match) Text() string {
	return m.Metadata[MetadataKeyText]
}

// QueryResponse is the answer to a QueryRequest.
type QueryResponse struct {
	Response string `json:"response"`
}

// HistoryResponse lists the conversation so far, oldest first.
type HistoryResponse struct {
	History []ConversationTurn `json:"history"`
}

// UploadResponse is returned after a document was ingested.
type UploadResponse struct {
	Message    string `json:"message"`
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// StatusResponse reports what the service currently holds.
type StatusResponse struct {
	Documents     int    `json:"documents"`
	Records       int    `json:"records"`
	Turns         int    `json:"turns"`
	IndexName     string `json:"index_name"`
	VectorBackend string `json:"vector_backend"`
	Dimensions    int    `json:"dimensions"`
	DiskUsage     int64  `json:"disk_usage_bytes"`
}
