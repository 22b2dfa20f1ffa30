package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/bedrock"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// DefaultBedrockModel is the Titan text embedding model.
const DefaultBedrockModel = "amazon.titan-embed-text-v1"

// BedrockEmbedder embeds text with a Titan model on Amazon Bedrock.
type BedrockEmbedder struct {
	runtime    bedrock.Runtime
	model      string
	dimensions int
	logger     *zap.Logger
}

// NewBedrockEmbedder returns an embedder invoking model through runtime.
func NewBedrockEmbedder(runtime bedrock.Runtime, model string, dimensions int, logger *zap.Logger) *BedrockEmbedder {
	if model == "" {
		model = DefaultBedrockModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockEmbedder{runtime: runtime, model: model, dimensions: dimensions, logger: logger}
}

// Embed sends {"inputText": text} and reads the "embedding" field of the reply.
func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embeddingResponse
	if err := bedrock.InvokeJSON(ctx, e.runtime, e.model, map[string]string{"inputText": text}, &out); err != nil {
		return nil, fmt.Errorf("%w: embed %q: %w", models.ErrEmbeddingService, utils.Truncate(text, 40), err)
	}
	if err := checkDimensions(out.Embedding, e.dimensions); err != nil {
		return nil, err
	}
	e.logger.Debug("embedded text", zap.String("model", e.model), zap.Int("dimensions", len(out.Embedding)))
	return out.Embedding, nil
}

// Dimensions returns the configured embedding dimension.
func (e *BedrockEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op; the AWS client holds no per-embedder resources.
func (e *BedrockEmbedder) Close() error { return nil }
