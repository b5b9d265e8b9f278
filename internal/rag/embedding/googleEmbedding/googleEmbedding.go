package googleEmbedding

import (
	"context"
	"errors"
	"sync"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/customHttpClient"
	"github.com/akolanti/ProposalAPI/internal/rag/embedding"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"google.golang.org/genai"
)

var logger = logger_i.NewLogger("google_embedding")
var once sync.Once
var embeddingClient *client

type client struct {
	genAi     *genai.Client
	model     string
	dimension int32
}

func newGoogleEmbedder(ctx context.Context, modelName string, apikey string, dimension int32) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apikey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: customHttpClient.GetClient(config.LLMRequestTimeout),
	})
	if err != nil {
		logger.Error("Error creating Google Embedding client", "error", err)
		return
	}
	embeddingClient = &client{genAi: c, model: modelName, dimension: dimension}
	logger.Info("Google Embedding client created", "model", modelName)
}

// GetGoogleEmbeddingClient returns nil when the client could not be created.
func GetGoogleEmbeddingClient(ctx context.Context, modelName string, apikey string, dimension int32) embedding.Embedder {
	once.Do(func() {
		if modelName == "" {
			modelName = config.GoogleEmbeddingModel
		}
		newGoogleEmbedder(ctx, modelName, apikey, dimension)
	})

	if embeddingClient == nil {
		return nil
	}
	return embeddingClient
}

func (c *client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	log := logger.ForContext(ctx)
	result, err := c.genAi.Models.EmbedContent(ctx, c.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &c.dimension,
		TaskType:             "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		log.Error("Error getting Embeddings from Google", "error", err.Error())
		return nil, err
	}
	if result == nil || len(result.Embeddings) == 0 {
		return nil, errors.New("google embedding returned no vectors")
	}
	return result.Embeddings[0].Values, nil
}
