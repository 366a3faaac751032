// Package llm provides text generation clients for report narratives.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aimd54/lifescope-insights/internal/config"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// Providers supported by New.
const (
	ProviderOpenAI    = "openai"
	ProviderQwen      = "qwen"
	ProviderAnthropic = "anthropic"
)

// QwenBaseURL is DashScope's OpenAI-compatible endpoint.
const QwenBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// ErrProvider wraps every failure reported by a provider. A deadline is
// returned as the context error instead.
var ErrProvider = errors.New("text generation provider error")

// TextGenerator produces a completion for a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// New creates the generator selected by cfg.Provider.
func New(cfg config.LLMConfig, log *logger.Logger) (TextGenerator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, log), nil
	case ProviderQwen:
		if cfg.BaseURL == "" {
			cfg.BaseURL = QwenBaseURL
		}
		return NewOpenAIClient(cfg, log), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// providerErr maps a failed call to the context error when ctx ended, or
// wraps it with ErrProvider otherwise.
func providerErr(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrProvider, provider, err)
}
