package openaiEmbedding

import (
	"context"
	"errors"

	"github.com/akolanti/ProposalAPI/internal/config"
	"github.com/akolanti/ProposalAPI/internal/customHttpClient"
	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Client struct {
	api       openai.Client
	model     string
	dimension int64
	logger    *logger_i.Logger
}

func New(apiKey, model string, dimension int32) *Client {
	if model == "" {
		model = config.OpenAIEmbeddingModel
	}
	return &Client{
		api: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(customHttpClient.GetClient(config.LLMRequestTimeout)),
		),
		model:     model,
		dimension: int64(dimension),
		logger:    logger_i.NewLogger("openai_embedding"),
	}
}

func (c *Client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(c.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Dimensions: openai.Int(c.dimension),
	})
	if err != nil {
		c.logger.ForContext(ctx).Error("Error getting Embeddings from OpenAI", "error", err)
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embedding returned no vectors")
	}
	values := resp.Data[0].Embedding
	vector := make([]float32, len(values))
	for i, v := range values {
		vector[i] = float32(v)
	}
	return vector, nil
}
