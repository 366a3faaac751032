package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aimd54/lifescope-insights/internal/config"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// OpenAIClient talks to any OpenAI-compatible chat completions API,
// including Qwen through DashScope's compatible mode.
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
	log         *logger.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg config.LLMConfig, log *logger.Logger) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         log,
	}
}

// Generate returns the first choice of a chat completion.
func (c *OpenAIClient) Generate(ctx context.Context, system, user string, maxTokens int) (string, error) {
	start := time.Now()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		c.log.Error().
			Err(err).
			Str("model", c.model).
			Dur("duration", time.Since(start)).
			Msg("Chat completion failed")
		return "", providerErr(ctx, "openai", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: empty response", ErrProvider)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: openai: empty response", ErrProvider)
	}

	c.log.Debug().
		Str("model", c.model).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("Chat completion generated")

	return content, nil
}
