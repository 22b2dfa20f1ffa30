package generation

import (
	"context"

	"github.com/hyperjump/kotae/internal/bedrock"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// DefaultBedrockModel is the Claude text-completion model on Amazon Bedrock.
const DefaultBedrockModel = "anthropic.claude-v2:1"

// BedrockGenerator sends framed prompts to a Claude completion model on Amazon Bedrock.
type BedrockGenerator struct {
	runtime          bedrock.Runtime
	model            string
	anthropicVersion string
	params           SamplingParams
	logger           *zap.Logger
}

// NewBedrockGenerator returns a generator invoking model through runtime.
func NewBedrockGenerator(runtime bedrock.Runtime, model, anthropicVersion string, params SamplingParams, logger *zap.Logger) *BedrockGenerator {
	if model == "" {
		model = DefaultBedrockModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockGenerator{
		runtime:          runtime,
		model:            model,
		anthropicVersion: anthropicVersion,
		params:           params,
		logger:           logger,
	}
}

// Generate frames prompt, invokes the model with the sampling parameters, and returns the trimmed completion.
func (g *BedrockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := completionRequest{
		Prompt:           Frame(prompt),
		AnthropicVersion: g.anthropicVersion,
		SamplingParams:   g.params,
	}
	var out completionResponse
	if err := bedrock.InvokeJSON(ctx, g.runtime, g.model, req, &out); err != nil {
		return "", models.Wrap(models.ErrGenerationService, "generate", err)
	}
	answer, err := out.answer()
	if err != nil {
		return "", err
	}
	g.logger.Debug("generated completion", zap.String("model", g.model), zap.Int("answer_chars", len(answer)))
	return answer, nil
}
