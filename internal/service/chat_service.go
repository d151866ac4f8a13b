package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"campus-rag-go/internal/gateway"
	"campus-rag-go/internal/model"
	"campus-rag-go/internal/retrieval"
	"campus-rag-go/pkg/llm"
	"campus-rag-go/pkg/log"

	"github.com/gorilla/websocket"
)

// EngineProvider 在需要时取得检索引擎。
type EngineProvider func(ctx context.Context) (*retrieval.Engine, error)

// GatewayEngine 返回基于全局向量网关单例构造检索引擎的 EngineProvider。
func GatewayEngine(opts retrieval.Options) EngineProvider {
	return func(ctx context.Context) (*retrieval.Engine, error) {
		gw, err := gateway.Get(ctx)
		if err != nil {
			return nil, err
		}
		return retrieval.NewEngine(gw, gw, opts), nil
	}
}

// ChatRequest 是一次聊天请求。ChatID 非空时问答会追加到对应线程。
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	ChatID  string `json:"chatId"`
}

// ChatMetadata 描述回答是如何得到的。
type ChatMetadata struct {
	OffTopic        bool                   `json:"offTopic"`
	HasIdentifier   bool                   `json:"hasIdentifier"`
	Identifiers     []string               `json:"identifiers,omitempty"`
	FoundExactMatch bool                   `json:"foundExactMatch"`
	UsedFallback    bool                   `json:"usedFallback"`
	Sources         []model.RetrievalMatch `json:"sources"`
	Model           string                 `json:"model,omitempty"`
	Usage           *llm.Usage             `json:"usage,omitempty"`
}

// ChatResponse 是聊天接口的返回体。
type ChatResponse struct {
	Response string       `json:"response"`
	Metadata ChatMetadata `json:"metadata"`
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	Answer(ctx context.Context, owner string, req ChatRequest) (*ChatResponse, error)
	StreamResponse(ctx context.Context, owner string, req ChatRequest, w llm.MessageWriter, shouldStop func() bool) (*ChatMetadata, error)
}

type chatService struct {
	engines       EngineProvider
	llmClient     llm.Client
	conversations ConversationService
}

// NewChatService 创建一个新的 ChatService 实例。conversations 为 nil 时不保存对话。
func NewChatService(engines EngineProvider, llmClient llm.Client, conversations ConversationService) ChatService {
	return &chatService{engines: engines, llmClient: llmClient, conversations: conversations}
}

func metadataFor(res *retrieval.Result) ChatMetadata {
	sources := res.Sources
	if sources == nil {
		sources = []model.RetrievalMatch{}
	}
	return ChatMetadata{
		OffTopic:        res.OffTopic,
		HasIdentifier:   res.HasIdentifier,
		Identifiers:     res.Identifiers,
		FoundExactMatch: res.FoundExactMatch,
		UsedFallback:    res.UsedFallback,
		Sources:         sources,
	}
}

func (s *chatService) retrieve(ctx context.Context, query string) (*retrieval.Engine, *retrieval.Result, error) {
	engine, err := s.engines(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize retrieval: %w", err)
	}
	res, err := engine.Retrieve(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve context: %w", err)
	}
	return engine, res, nil
}

// Answer 协调检索与生成，返回完整回答。
func (s *chatService) Answer(ctx context.Context, owner string, req ChatRequest) (*ChatResponse, error) {
	engine, res, err := s.retrieve(ctx, req.Message)
	if err != nil {
		return nil, err
	}
	resp := &ChatResponse{Metadata: metadataFor(res)}
	if res.OffTopic {
		resp.Response = retrieval.RefusalMessage
		s.remember(owner, req, resp.Response)
		return resp, nil
	}

	completion := engine.BuildCompletion(res)
	out, err := s.llmClient.Complete(ctx, completion.Messages, completion.Params())
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	resp.Response = out.Content
	resp.Metadata.Model = out.Model
	resp.Metadata.Usage = &out.Usage
	log.Infof("[ChatService] 回答完成, 来源: %d, tokens: %d", len(res.Sources), out.Usage.TotalTokens)
	s.remember(owner, req, resp.Response)
	return resp, nil
}

// StreamResponse 协调检索并把 LLM 的流式输出写入 w，结束时发送完成通知。
func (s *chatService) StreamResponse(ctx context.Context, owner string, req ChatRequest, w llm.MessageWriter, shouldStop func() bool) (*ChatMetadata, error) {
	engine, res, err := s.retrieve(ctx, req.Message)
	if err != nil {
		return nil, err
	}
	meta := metadataFor(res)
	answer := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: w, writer: answer, shouldStop: shouldStop}

	if res.OffTopic {
		if err := interceptor.WriteMessage(websocket.TextMessage, []byte(retrieval.RefusalMessage)); err != nil {
			return nil, err
		}
	} else {
		completion := engine.BuildCompletion(res)
		if err := s.llmClient.StreamChatMessages(ctx, completion.Messages, completion.Params(), interceptor); err != nil {
			return nil, err
		}
	}

	sendCompletion(w, meta)
	if answer.Len() > 0 {
		s.remember(owner, req, answer.String())
	}
	return &meta, nil
}

// remember 保存问答。即使原始请求被取消，也希望保存已生成的回答。
func (s *chatService) remember(owner string, req ChatRequest, answer string) {
	if s.conversations == nil || req.ChatID == "" || owner == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.conversations.AppendExchange(ctx, owner, req.ChatID, req.Message, answer); err != nil {
		log.Errorf("[ChatService] 保存对话失败: %v", err)
	}
}

// wsWriterInterceptor 捕获写入的分块，并包装为 {"chunk":"..."}。
type wsWriterInterceptor struct {
	conn       llm.MessageWriter
	writer     *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		return nil
	}
	w.writer.Write(data)
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知，附带检索元数据。
func sendCompletion(w llm.MessageWriter, meta ChatMetadata) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"metadata":  meta,
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	_ = w.WriteMessage(websocket.TextMessage, b)
}
