// Package gateway 是访问嵌入服务与向量索引的唯一入口。
// 所有外部调用都经过熔断器，失败统一包装为 ErrServiceUnavailable。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-rag-go/internal/config"
	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"

	"github.com/sony/gobreaker"
)

// ErrServiceUnavailable 表示嵌入服务或向量索引不可用。
var ErrServiceUnavailable = errors.New("embedding or vector service unavailable")

// DefaultBatchSize 是单批写入向量的数量。
const DefaultBatchSize = 50

// Embedder 把文本转换为向量。
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index 是向量索引的最小接口。分数越高越相似。
type Index interface {
	Upsert(ctx context.Context, records []model.VectorRecord) error
	Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error)
	DeleteByContentHash(ctx context.Context, hash string) (int64, error)
}

// UpsertResult 汇总一次文档向量写入的结果。
type UpsertResult struct {
	Total   int  `json:"total"`
	Stored  int  `json:"stored"`
	Partial bool `json:"partial"`
}

// Gateway 组合嵌入服务与向量索引。
type Gateway struct {
	embedder  Embedder
	index     Index
	breaker   *gobreaker.CircuitBreaker
	batchSize int
}

// New 创建 Gateway。batchSize 不大于 0 时使用 DefaultBatchSize。
func New(embedder Embedder, index Index, cfg config.BreakerConfig, batchSize int) *Gateway {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	minRequests := cfg.MinRequests
	ratio := cfg.FailureRatio
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "VectorGateway",
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[Gateway] 熔断器 %s 状态变化: %s -> %s", name, from, to)
		},
		// 调用方主动取消不计入失败。
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Gateway{embedder: embedder, index: index, breaker: breaker, batchSize: batchSize}
}

// execute 通过熔断器执行 fn，并把失败包装为 ErrServiceUnavailable。
func (g *Gateway) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	out, err := g.breaker.Execute(fn)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Warnf("[Gateway] %s 被熔断器拒绝", op)
	} else {
		log.Errorf("[Gateway] %s 失败, error: %v", op, err)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, op, err)
}

// Embed 为一批文本生成向量。
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := g.execute("embed", func() (interface{}, error) {
		vectors, err := g.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("expected %d vectors, got %d", len(texts), len(vectors))
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([][]float32), nil
}

// EmbedQuery 为单条查询生成向量。
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Query 返回与 vector 最相似的 topK 条记录。
func (g *Gateway) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	out, err := g.execute("query", func() (interface{}, error) {
		return g.index.Query(ctx, vector, topK)
	})
	if err != nil {
		return nil, err
	}
	return out.([]model.VectorMatch), nil
}

// VectorID 返回切块在索引中的内容寻址 ID。
func VectorID(contentHash string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", contentHash, chunkIndex)
}

// UpsertChunks 按批嵌入并写入切块。某一批失败后停止后续批次，
// 返回的结果记录已写入的数量，Partial 表示只写入了一部分。
func (g *Gateway) UpsertChunks(ctx context.Context, chunks []model.Chunk) (UpsertResult, error) {
	result := UpsertResult{Total: len(chunks)}
	for start := 0; start < len(chunks); start += g.batchSize {
		end := start + g.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vectors, err := g.Embed(ctx, texts)
		if err != nil {
			result.Partial = result.Stored > 0
			return result, err
		}

		records := make([]model.VectorRecord, len(batch))
		for i, ch := range batch {
			records[i] = model.VectorRecord{
				ID:     VectorID(ch.Metadata.ContentHash, ch.Metadata.ChunkIndex),
				Vector: vectors[i],
				Metadata: model.VectorMetadata{
					ChunkMetadata: ch.Metadata,
					ChunkID:       ch.ID,
					Text:          ch.Text,
					DataType:      ch.DataType,
					StructuralKey: ch.StructuralKey,
				},
			}
		}
		if _, err := g.execute("upsert", func() (interface{}, error) {
			return nil, g.index.Upsert(ctx, records)
		}); err != nil {
			result.Partial = result.Stored > 0
			return result, err
		}
		result.Stored += len(batch)
		log.Debugf("[Gateway] 第 %d 批写入完成, 累计 %d/%d", start/g.batchSize+1, result.Stored, result.Total)
	}
	return result, nil
}

// DeleteDocument 删除某个文档版本的全部向量。
func (g *Gateway) DeleteDocument(ctx context.Context, contentHash string) (int64, error) {
	out, err := g.execute("delete", func() (interface{}, error) {
		return g.index.DeleteByContentHash(ctx, contentHash)
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}
