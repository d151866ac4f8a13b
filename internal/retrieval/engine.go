// Package retrieval 实现查询时的检索流程：
// 话题判断、查询扩展、向量检索、编号精确回退以及上下文拼装。
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"campus-rag-go/internal/config"
	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Embedder 为查询生成向量。
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index 返回与向量最相似的记录。
type Index interface {
	Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error)
}

// Options 是检索与生成参数。
type Options struct {
	IdentifierTopK      int
	SemanticTopK        int
	FallbackTopK        int
	IdentifierThreshold float64
	SemanticThreshold   float64
	DedupePrefix        int
	Model               string
	Temperature         float64
	MaxTokens           int
}

// DefaultOptions 返回默认参数。
func DefaultOptions() Options {
	return Options{
		IdentifierTopK:      25,
		SemanticTopK:        12,
		FallbackTopK:        15,
		IdentifierThreshold: 0.45,
		SemanticThreshold:   0.0,
		DedupePrefix:        100,
		Model:               "gpt-4o-mini",
		Temperature:         0.6,
		MaxTokens:           1500,
	}
}

// OptionsFromConfig 从配置构造 Options，零值字段保留默认值。
func OptionsFromConfig(rc config.RetrievalConfig, lc config.LLMConfig) Options {
	o := DefaultOptions()
	if rc.IdentifierTopK > 0 {
		o.IdentifierTopK = rc.IdentifierTopK
	}
	if rc.SemanticTopK > 0 {
		o.SemanticTopK = rc.SemanticTopK
	}
	if rc.FallbackTopK > 0 {
		o.FallbackTopK = rc.FallbackTopK
	}
	if rc.IdentifierThreshold > 0 {
		o.IdentifierThreshold = rc.IdentifierThreshold
	}
	o.SemanticThreshold = rc.SemanticThreshold
	if rc.DedupePrefix > 0 {
		o.DedupePrefix = rc.DedupePrefix
	}
	if lc.Model != "" {
		o.Model = lc.Model
	}
	if lc.Generation.Temperature > 0 {
		o.Temperature = lc.Generation.Temperature
	}
	if lc.Generation.MaxTokens > 0 {
		o.MaxTokens = lc.Generation.MaxTokens
	}
	return o
}

// Result 是一次检索的完整结果，也是生成回答的输入。
type Result struct {
	Query           string                 `json:"query"`
	ExpandedQuery   string                 `json:"expandedQuery,omitempty"`
	OffTopic        bool                   `json:"offTopic"`
	HasIdentifier   bool                   `json:"hasIdentifier"`
	Identifiers     []string               `json:"identifiers,omitempty"`
	FoundExactMatch bool                   `json:"foundExactMatch"`
	UsedFallback    bool                   `json:"usedFallback"`
	Context         string                 `json:"-"`
	Sources         []model.RetrievalMatch `json:"sources"`
}

// HasContext 判断是否找到了可用的上下文。
func (r *Result) HasContext() bool {
	return strings.TrimSpace(r.Context) != ""
}

// Engine 是检索引擎。
type Engine struct {
	embedder Embedder
	index    Index
	opts     Options
	tracer   trace.Tracer
}

// NewEngine 创建检索引擎。
func NewEngine(embedder Embedder, index Index, opts Options) *Engine {
	return &Engine{
		embedder: embedder,
		index:    index,
		opts:     opts,
		tracer:   otel.Tracer("campus-rag-go/retrieval"),
	}
}

// Options 返回引擎使用的参数。
func (e *Engine) Options() Options {
	return e.opts
}

// contextBuilder 累积上下文，按文本前缀去重并记录来源。
type contextBuilder struct {
	prefixLen int
	seen      map[string]struct{}
	sb        strings.Builder
	sources   []model.RetrievalMatch
}

func newContextBuilder(prefixLen int) *contextBuilder {
	return &contextBuilder{prefixLen: prefixLen, seen: make(map[string]struct{})}
}

func (b *contextBuilder) add(m model.VectorMatch) bool {
	text := m.Metadata.Text
	prefix := text
	if runes := []rune(text); len(runes) > b.prefixLen {
		prefix = string(runes[:b.prefixLen])
	}
	prefix = strings.ToLower(prefix)
	if _, ok := b.seen[prefix]; ok {
		return false
	}
	b.seen[prefix] = struct{}{}
	fmt.Fprintf(&b.sb, "[Source: %s]\n%s\n\n", m.Metadata.Filename, text)
	b.sources = append(b.sources, model.RetrievalMatch{
		ChunkRef: m.ID,
		Score:    m.Score,
		Filename: m.Metadata.Filename,
		ChunkID:  m.Metadata.ChunkID,
	})
	return true
}

func (b *contextBuilder) reset() {
	b.seen = make(map[string]struct{})
	b.sb.Reset()
	b.sources = nil
}

// Retrieve 执行一次检索。嵌入或索引失败会中止本次查询，错误中包含 gateway.ErrServiceUnavailable。
func (e *Engine) Retrieve(ctx context.Context, query string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	res := &Result{Query: query, Sources: []model.RetrievalMatch{}}
	if !IsInScope(query) {
		log.Infof("[Retrieval] 拒绝无关问题: %q", query)
		res.OffTopic = true
		span.SetAttributes(attribute.Bool("retrieval.off_topic", true))
		return res, nil
	}

	res.ExpandedQuery = Expand(query)
	res.HasIdentifier = HasIdentifier(query)
	if res.HasIdentifier {
		res.Identifiers = ExtractIdentifiers(query)
	}
	log.Infof("[Retrieval] 查询扩展: %q -> %q, 标识: %v", query, res.ExpandedQuery, res.Identifiers)

	vector, err := e.embedder.EmbedQuery(ctx, res.ExpandedQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query")
		return nil, fmt.Errorf("生成查询向量失败: %w", err)
	}

	topK, threshold := e.opts.SemanticTopK, e.opts.SemanticThreshold
	if res.HasIdentifier {
		topK, threshold = e.opts.IdentifierTopK, e.opts.IdentifierThreshold
	}
	matches, err := e.index.Query(ctx, vector, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "primary search")
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	log.Debugf("[Retrieval] 主检索返回 %d 条结果, topK: %d, 阈值: %.2f", len(matches), topK, threshold)

	cb := newContextBuilder(e.opts.DedupePrefix)
	for _, m := range matches {
		include := m.Score > threshold
		if len(res.Identifiers) > 0 && containsIdentifier(m.Metadata.Text, res.Identifiers) {
			include = true
			res.FoundExactMatch = true
		}
		if include {
			cb.add(m)
		}
	}

	if len(res.Identifiers) > 0 && !res.FoundExactMatch {
		if cb.sb.Len() > 0 {
			log.Infof("[Retrieval] 主检索未精确命中 %v, 丢弃 %d 字符的上下文", res.Identifiers, cb.sb.Len())
		}
		cb.reset()
		res.UsedFallback = true
		if err := e.exactFallback(ctx, res, cb); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "exact fallback")
			return nil, err
		}
	}

	res.Context = cb.sb.String()
	res.Sources = append(res.Sources, cb.sources...)
	span.SetAttributes(
		attribute.Bool("retrieval.has_identifier", res.HasIdentifier),
		attribute.Bool("retrieval.used_fallback", res.UsedFallback),
		attribute.Int("retrieval.sources", len(res.Sources)),
	)
	log.Infof("[Retrieval] 上下文拼装完成, 来源: %d, 长度: %d", len(res.Sources), len(res.Context))
	return res, nil
}

// exactFallback 只用第一个标识重新检索，并只保留文本中包含该标识的结果。
func (e *Engine) exactFallback(ctx context.Context, res *Result, cb *contextBuilder) error {
	vector, err := e.embedder.EmbedQuery(ctx, res.Identifiers[0])
	if err != nil {
		return fmt.Errorf("生成回退查询向量失败: %w", err)
	}
	matches, err := e.index.Query(ctx, vector, e.opts.FallbackTopK)
	if err != nil {
		return fmt.Errorf("回退检索失败: %w", err)
	}
	for _, m := range matches {
		if containsIdentifier(m.Metadata.Text, res.Identifiers) && cb.add(m) {
			res.FoundExactMatch = true
		}
	}
	log.Infof("[Retrieval] 回退检索返回 %d 条结果, 精确命中: %t", len(matches), res.FoundExactMatch)
	return nil
}
