// Package generation sends a composed prompt to a text generation model and returns its answer.
package generation

import (
	"context"

	"github.com/hyperjump/kotae/internal/config"
)

// Generator turns a prompt into an answer. It has no side effects beyond the remote call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HumanTurn and AssistantTurn delimit the conversational framing of completion models.
const (
	HumanTurn     = "\n\nHuman:"
	AssistantTurn = "\n\nAssistant:"
)

// SamplingParams are fixed for the lifetime of a generator.
type SamplingParams struct {
	Temperature   float64  `json:"temperature"`
	MaxTokens     int      `json:"max_tokens_to_sample"`
	TopP          float64  `json:"top_p"`
	TopK          int      `json:"top_k"`
	StopSequences []string `json:"stop_sequences"`
}

// DefaultSampling returns temperature 0.7, 200 tokens, top_p 0.999, top_k 100, stopping at the next human turn.
func DefaultSampling() SamplingParams {
	return SamplingParams{
		Temperature:   config.DefaultTemperature,
		MaxTokens:     200,
		TopP:          0.999,
		TopK:          100,
		StopSequences: []string{HumanTurn},
	}
}

// SamplingFromConfig reads sampling parameters. An unset temperature and zero
// values elsewhere fall back to the defaults.
func SamplingFromConfig(cfg config.GenerationConfig) SamplingParams {
	p := DefaultSampling()
	if cfg.Temperature != nil {
		p.Temperature = *cfg.Temperature
	}
	if cfg.MaxTokens != 0 {
		p.MaxTokens = cfg.MaxTokens
	}
	if cfg.TopP != 0 {
		p.TopP = cfg.TopP
	}
	if cfg.TopK != 0 {
		p.TopK = cfg.TopK
	}
	if len(cfg.StopSequences) > 0 {
		p.StopSequences = append([]string(nil), cfg.StopSequences...)
	}
	return p
}

// Frame wraps prompt in one human turn followed by an open assistant turn.
func Frame(prompt string) string {
	return HumanTurn + " " + prompt + AssistantTurn
}
