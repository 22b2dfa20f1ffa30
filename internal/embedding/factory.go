package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/bedrock"
	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// NewEmbedder builds the embedder selected by cfg.Provider: "http", "bedrock", "gemini", or "mock".
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "http", "":
		return NewHTTPEmbedder(cfg.Endpoint, cfg.Model, cfg.Format, cfg.Dimensions,
			WithTimeout(cfg.Timeout),
			WithAPIKey(cfg.APIKey()),
			WithLogger(logger),
		)
	case "bedrock":
		client, err := bedrock.NewClient(ctx, cfg.Region, cfg.Endpoint, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return NewBedrockEmbedder(client, cfg.Model, cfg.Dimensions, logger), nil
	case "gemini":
		return NewGeminiEmbedder(ctx, cfg.APIKey(), cfg.Model, cfg.Dimensions)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
