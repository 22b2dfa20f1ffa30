package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// Request body formats understood by HTTPEmbedder.
const (
	FormatTitan  = "titan"  // {"inputText": ...} -> {"embedding": [...]}
	FormatOpenAI = "openai" // {"input": ..., "model": ...} -> {"data": [{"embedding": [...]}]}
)

// HTTPEmbedder calls a JSON embedding endpoint.
type HTTPEmbedder struct {
	endpoint   string
	model      string
	format     string
	apiKey     string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// HTTPOption configures an HTTPEmbedder.
type HTTPOption func(*HTTPEmbedder)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(e *HTTPEmbedder) { e.apiKey = key }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPEmbedder) { e.client = c }
}

// WithTimeout sets a per-request timeout on the default client. Zero means none.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEmbedder) { e.client = &http.Client{Timeout: d} }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(e *HTTPEmbedder) { e.logger = l }
}

// NewHTTPEmbedder returns an embedder posting to endpoint in the given format.
func NewHTTPEmbedder(endpoint, model, format string, dimensions int, opts ...HTTPOption) (*HTTPEmbedder, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	switch format {
	case "":
		format = FormatTitan
	case FormatTitan, FormatOpenAI:
	default:
		return nil, fmt.Errorf("unknown embedding format %q", format)
	}
	e := &HTTPEmbedder{
		endpoint:   endpoint,
		model:      model,
		format:     format,
		dimensions: dimensions,
		client:     &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Data      []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed sends text to the endpoint and returns its vector.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var body any
	switch e.format {
	case FormatOpenAI:
		body = map[string]string{"input": text, "model": e.model}
	default:
		body = map[string]string{"inputText": text}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, models.Wrap(models.ErrEmbeddingService, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, models.Wrap(models.ErrEmbeddingService, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, models.Wrap(models.ErrEmbeddingService, "embed "+utils.Truncate(text, 40), err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.Wrap(models.ErrEmbeddingService, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: server returned %d: %s", models.ErrEmbeddingService, resp.StatusCode, utils.Truncate(string(raw), 200))
	}
	var out embeddingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, models.Wrap(models.ErrEmbeddingService, "decode response", err)
	}
	v := out.Embedding
	if len(v) == 0 && len(out.Data) > 0 {
		v = out.Data[0].Embedding
	}
	if err := checkDimensions(v, e.dimensions); err != nil {
		return nil, err
	}
	e.logger.Debug("embedded text", zap.Int("chars", len(text)), zap.Int("dimensions", len(v)))
	return v, nil
}

// Dimensions returns the configured embedding dimension.
func (e *HTTPEmbedder) Dimensions() int { return e.dimensions }

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
