package generation

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/bedrock"
	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// NewGenerator builds the generator selected by cfg.Provider: "completion", "bedrock", or "gemini".
func NewGenerator(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	params := SamplingFromConfig(cfg)
	switch cfg.Provider {
	case "completion", "":
		return NewCompletionGenerator(cfg.Endpoint, params,
			WithAPIKey(cfg.APIKey()),
			WithAnthropicVersion(cfg.AnthropicVersion),
			WithTimeout(cfg.Timeout),
			WithLogger(logger),
		)
	case "bedrock":
		client, err := bedrock.NewClient(ctx, cfg.Region, cfg.Endpoint, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return NewBedrockGenerator(client, cfg.Model, cfg.AnthropicVersion, params, logger), nil
	case "gemini":
		return NewGeminiGenerator(ctx, cfg.APIKey(), cfg.Model, params)
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}
