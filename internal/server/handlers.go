package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"go.uber.org/zap"
)

const uploadMessage = "File uploaded and processed successfully"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Server.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.Int("bytes", len(content)))
	res, err := s.pipeline.Ingest(r.Context(), models.Document{Filename: header.Filename, Content: content})
	if err != nil {
		s.fail(w, "upload failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.UploadResponse{
		Message:    uploadMessage,
		DocumentID: res.DocumentID,
		Chunks:     res.Chunks,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := s.pipeline.Ask(r.Context(), req.Query)
	if err != nil {
		s.fail(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.QueryResponse{Response: answer})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	history := s.pipeline.History()
	if history == nil {
		history = []models.ConversationTurn{}
	}
	s.respondJSON(w, http.StatusOK, models.HistoryResponse{History: history})
}

func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	s.pipeline.ClearHistory()
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Conversation history cleared"})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	docs, err := s.pipeline.Documents(r.Context(), offset, limit)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.StoredDocument{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// handleDocument serves the original bytes of a stored upload as an attachment.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, content, err := s.pipeline.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get document failed", err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(content))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.pipeline.DocumentCount(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	records, err := s.index.Count(ctx)
	if err != nil {
		s.fail(w, "status: count records failed", err)
		return
	}
	resp := models.StatusResponse{
		Documents:     int(docCount),
		Records:       records,
		Turns:         s.pipeline.Turns(),
		IndexName:     s.config.Vector.IndexName,
		VectorBackend: s.config.Vector.Backend,
		Dimensions:    s.config.Embedding.Dimensions,
	}
	if diskBytes, err := storage.StoreFootprint(s.config.Storage.DatabasePath, s.config.Vector.SnapshotPath); err == nil {
		resp.DiskUsage = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// fail logs err and writes it with the status its error kind maps to.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err), zap.Bool("retryable", models.IsRetryable(err)))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrExtraction):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIndexProvisioning):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrEmbeddingService),
		errors.Is(err, models.ErrIndexWrite),
		errors.Is(err, models.ErrIndexQuery),
		errors.Is(err, models.ErrRetrieval),
		errors.Is(err, models.ErrGenerationService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
