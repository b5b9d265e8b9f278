package gemini

import (
	"context"
	"errors"
	"sync"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/customHttpClient"
	"github.com/akolanti/ProposalAPI/internal/rag/llm"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"google.golang.org/genai"
)

type llmClient struct {
	client    *genai.Client
	modelName string
}

var logger = logger_i.NewLogger("llm_gemini")
var geminiClient *llmClient
var once sync.Once

// GetGeminiClient returns nil when the client could not be created.
func GetGeminiClient(ctx context.Context, modelName string, apikey string) llm.Invoker {
	once.Do(func() {
		if modelName == "" {
			modelName = config.GeminiModelName
		}
		newGeminiClient(ctx, modelName, apikey)
	})

	if geminiClient == nil {
		return nil
	}
	return geminiClient
}

func newGeminiClient(ctx context.Context, modelName string, apikey string) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apikey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: customHttpClient.GetClient(config.LLMRequestTimeout),
	})
	if err != nil {
		logger.Error("Error creating Gemini client", "error", err)
		return
	}
	geminiClient = &llmClient{client: c, modelName: modelName}
	logger.Info("Gemini client created", "model", modelName)
}

func (c *llmClient) Invoke(ctx context.Context, req llm.Request) (string, error) {
	log := logger.ForContext(ctx)

	contentConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(req.Temperature),
		MaxOutputTokens:   int32(req.MaxTokens),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.modelName, genai.Text(req.UserPrompt), contentConfig)
	if err != nil {
		log.Error("Gemini generate failed", "error", err)
		return "", llm.InvocationError("gemini", err)
	}
	text := result.Text()
	if text == "" {
		return "", llm.InvocationError("gemini", errors.New("empty response"))
	}
	log.Debug("Gemini response received", "chars", len(text))
	return text, nil
}
