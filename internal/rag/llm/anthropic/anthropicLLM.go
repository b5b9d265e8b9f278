package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/customHttpClient"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type Client struct {
	api    anthropic.Client
	model  string
	logger *logger_i.Logger
}

func New(apiKey, model string) *Client {
	if model == "" {
		model = config.AnthropicModelName
	}
	return &Client{
		api: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(customHttpClient.GetClient(config.LLMRequestTimeout)),
		),
		model:  model,
		logger: logger_i.NewLogger("llm_anthropic"),
	}
}

func (c *Client) Invoke(ctx context.Context, req llm.Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.MaxOutputTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		c.logger.ForContext(ctx).Error("Claude call failed", "error", err)
		return "", llm.InvocationError("anthropic", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", llm.InvocationError("anthropic", errors.New("no text content in response"))
	}
	return text.String(), nil
}
