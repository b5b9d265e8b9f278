package openai

import (
	"context"
	"errors"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/customHttpClient"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	api    openai.Client
	model  string
	logger *logger_i.Logger
}

func New(apiKey, model string) *Client {
	if model == "" {
		model = config.OpenAIModelName
	}
	return &Client{
		api: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(customHttpClient.GetClient(config.LLMRequestTimeout)),
		),
		model:  model,
		logger: logger_i.NewLogger("llm_openai"),
	}
}

func (c *Client) Invoke(ctx context.Context, req llm.Request) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(float64(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		c.logger.ForContext(ctx).Error("OpenAI call failed", "error", err)
		return "", llm.InvocationError("openai", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", llm.InvocationError("openai", errors.New("empty response"))
	}
	return resp.Choices[0].Message.Content, nil
}
