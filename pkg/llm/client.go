// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"github.com/gorilla/websocket"
	"github.com/sashabaranov/go-openai"
)

// MessageWriter defines an interface for writing WebSocket messages.
// This allows both a standard websocket.Conn and an interceptor to be used.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息调用聊天接口，返回完整回答与用量。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (*Completion, error)
	// StreamChatMessages 以流式方式调用聊天接口，并将分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams 控制生成行为，nil 字段使用配置中的值。
type GenerationParams struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// Usage 是一次调用的 token 用量。
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completion 是非流式调用的结果。
type Completion struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient creates a new OpenAI-compatible chat client.
func NewClient(cfg config.LLMConfig) Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &openAIClient{cfg: cfg, client: openai.NewClientWithConfig(oc)}
}

func (c *openAIClient) buildRequest(messages []Message, gen *GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Generation.Temperature),
		MaxTokens:   c.cfg.Generation.MaxTokens,
	}
	// 传参优先于全局配置
	if gen != nil {
		if gen.Model != "" {
			req.Model = gen.Model
		}
		if gen.Temperature != nil {
			req.Temperature = float32(*gen.Temperature)
		}
		if gen.MaxTokens != nil {
			req.MaxTokens = *gen.MaxTokens
		}
	}
	req.Messages = make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return req
}

func (c *openAIClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (*Completion, error) {
	req := c.buildRequest(messages, gen)
	log.Infof("[LLMClient] 调用聊天接口, model: %s, messages: %d", req.Model, len(messages))

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Errorf("[LLMClient] 调用聊天接口失败, error: %v", err)
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat api returned no choices")
	}
	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *openAIClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	req := c.buildRequest(messages, gen)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from stream: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(chunk.Choices[0].Delta.Content)); err != nil {
			return fmt.Errorf("failed to write message to websocket: %w", err)
		}
	}
}
