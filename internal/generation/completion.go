package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// CompletionGenerator calls a text-completion endpoint that takes a framed prompt
// and answers with a "completion" field.
type CompletionGenerator struct {
	endpoint         string
	apiKey           string
	anthropicVersion string
	params           SamplingParams
	client           *http.Client
	logger           *zap.Logger
}

// CompletionOption configures a CompletionGenerator.
type CompletionOption func(*CompletionGenerator)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) CompletionOption {
	return func(g *CompletionGenerator) { g.apiKey = key }
}

// WithAnthropicVersion sets the anthropic_version request field.
func WithAnthropicVersion(v string) CompletionOption {
	return func(g *CompletionGenerator) { g.anthropicVersion = v }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) CompletionOption {
	return func(g *CompletionGenerator) { g.client = c }
}

// WithTimeout sets a per-request timeout on the default client. Zero means none.
func WithTimeout(d time.Duration) CompletionOption {
	return func(g *CompletionGenerator) { g.client = &http.Client{Timeout: d} }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) CompletionOption {
	return func(g *CompletionGenerator) { g.logger = l }
}

// NewCompletionGenerator returns a generator posting to endpoint.
func NewCompletionGenerator(endpoint string, params SamplingParams, opts ...CompletionOption) (*CompletionGenerator, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("generation endpoint is required")
	}
	g := &CompletionGenerator{
		endpoint: endpoint,
		params:   params,
		client:   &http.Client{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type completionRequest struct {
	Prompt           string `json:"prompt"`
	AnthropicVersion string `json:"anthropic_version,omitempty"`
	SamplingParams
}

type completionResponse struct {
	Completion *string `json:"completion"`
}

// answer returns the trimmed completion. An empty completion is a valid answer;
// a missing field is not.
func (r completionResponse) answer() (string, error) {
	if r.Completion == nil {
		return "", fmt.Errorf("%w: response is missing the completion field", models.ErrGenerationService)
	}
	return strings.TrimSpace(*r.Completion), nil
}

// Generate frames prompt, posts it with the sampling parameters, and returns the trimmed completion.
func (g *CompletionGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:           Frame(prompt),
		AnthropicVersion: g.anthropicVersion,
		SamplingParams:   g.params,
	})
	if err != nil {
		return "", models.Wrap(models.ErrGenerationService, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", models.Wrap(models.ErrGenerationService, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", models.Wrap(models.ErrGenerationService, "generate", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.Wrap(models.ErrGenerationService, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: server returned %d: %s", models.ErrGenerationService, resp.StatusCode, utils.Truncate(string(raw), 200))
	}
	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", models.Wrap(models.ErrGenerationService, "decode response", err)
	}
	answer, err := out.answer()
	if err != nil {
		return "", err
	}
	g.logger.Debug("generated completion", zap.Int("prompt_chars", len(prompt)), zap.Int("answer_chars", len(answer)))
	return answer, nil
}
