package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aimd54/lifescope-insights/internal/config"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// AnthropicClient generates text with the Anthropic Messages API.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	log         *logger.Logger
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg config.LLMConfig, log *logger.Logger) *AnthropicClient {
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

	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         log,
	}
}

// Generate returns the concatenated text blocks of one message.
func (c *AnthropicClient) Generate(ctx context.Context, system, user string, maxTokens int) (string, error) {
	start := time.Now()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(c.temperature),
	})
	if err != nil {
		c.log.Error().
			Err(err).
			Str("model", c.model).
			Dur("duration", time.Since(start)).
			Msg("Anthropic message failed")
		return "", providerErr(ctx, "anthropic", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", fmt.Errorf("%w: anthropic: empty response", ErrProvider)
	}

	c.log.Debug().
		Str("model", c.model).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Dur("duration", time.Since(start)).
		Msg("Anthropic message generated")

	return content, nil
}
