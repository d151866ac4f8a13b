// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyEmbedding is returned when the API answers without a vector for some input.
var ErrEmptyEmbedding = errors.New("received empty embedding from api")

// Client defines the interface for an embedding client.
type Client interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *openai.Client
}

// NewClient creates a new OpenAI-compatible embedding client.
func NewClient(cfg config.EmbeddingConfig) Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
	}
}

// Embed calls the embeddings endpoint once for the whole batch.
func (c *openAICompatibleClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, batch: %d", c.cfg.Model, len(texts))

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		vectors[idx] = d.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据, index: %d", i)
			return nil, fmt.Errorf("%w: index %d", ErrEmptyEmbedding, i)
		}
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取向量, 数量: %d, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}
