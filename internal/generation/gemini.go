package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"google.golang.org/genai"
)

// geminiModels is the subset of *genai.Models used for generation.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator generates answers with the Gemini API. The prompt is sent as a
// single user turn, which is Gemini's form of the human/assistant framing.
type GeminiGenerator struct {
	models geminiModels
	model  string
	params SamplingParams
}

// NewGeminiGenerator creates a Gemini API client for the given model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, params SamplingParams) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{models: client.Models, model: model, params: params}, nil
}

func (g *GeminiGenerator) contentConfig() *genai.GenerateContentConfig {
	temp := float32(g.params.Temperature)
	topP := float32(g.params.TopP)
	topK := float32(g.params.TopK)
	return &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		TopK:            &topK,
		MaxOutputTokens: int32(g.params.MaxTokens),
		StopSequences:   g.params.StopSequences,
	}
}

// Generate sends prompt and returns the trimmed text of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, g.contentConfig())
	if err != nil {
		return "", models.Wrap(models.ErrGenerationService, "gemini generate", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini response has no candidates", models.ErrGenerationService)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
