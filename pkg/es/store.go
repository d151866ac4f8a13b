package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esDocument 是写入索引的文档结构。
type esDocument struct {
	VectorID    string               `json:"vector_id"`
	ContentHash string               `json:"content_hash"`
	FileName    string               `json:"file_name"`
	ChunkID     int                  `json:"chunk_id"`
	TextContent string               `json:"text_content"`
	Vector      []float32            `json:"vector,omitempty"`
	Metadata    model.VectorMetadata `json:"metadata"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string     `json:"_id"`
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// Store 是基于 Elasticsearch dense_vector 的向量索引。
type Store struct {
	client    *elasticsearch.Client
	indexName string
}

// NewStore 使用给定客户端和索引名创建 Store。
func NewStore(client *elasticsearch.Client, indexName string) *Store {
	return &Store{client: client, indexName: indexName}
}

// Upsert 通过 bulk 接口写入一批向量，相同 ID 的文档会被覆盖。
func (s *Store) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, r := range records {
		action := map[string]map[string]string{"index": {"_index": s.indexName, "_id": r.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		doc := esDocument{
			VectorID:    r.ID,
			ContentHash: r.Metadata.ContentHash,
			FileName:    r.Metadata.Filename,
			ChunkID:     r.Metadata.ChunkID,
			TextContent: r.Metadata.Text,
			Vector:      r.Vector,
			Metadata:    r.Metadata,
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{Body: &body, Refresh: "true"}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("bulk 写入失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] bulk 写入返回错误: %s", res.String())
		return errors.New("bulk 写入返回错误")
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if br.Errors {
		for _, item := range br.Items {
			for _, v := range item {
				if v.Error != nil {
					return fmt.Errorf("文档 %s 写入失败: %s: %s", v.ID, v.Error.Type, v.Error.Reason)
				}
			}
		}
		return errors.New("bulk 写入部分失败")
	}
	log.Debugf("[ES] bulk 写入 %d 条向量到索引 %s", len(records), s.indexName)
	return nil
}

// Query 执行 knn 检索。Elasticsearch 的 cosine 得分为 (1+cos)/2，这里换算回余弦相似度。
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	candidates := topK * 10
	if candidates < 100 {
		candidates = 100
	}
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": candidates,
		},
		"size":    topK,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("knn 检索失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] knn 检索返回错误: %s", res.String())
		return nil, errors.New("knn 检索返回错误")
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("解析检索响应失败: %w", err)
	}
	matches := make([]model.VectorMatch, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		matches = append(matches, model.VectorMatch{
			ID:       h.ID,
			Score:    h.Score*2 - 1,
			Metadata: h.Source.Metadata,
		})
	}
	return matches, nil
}

// DeleteByContentHash 删除某个文档版本的全部向量，返回删除数量。
func (s *Store) DeleteByContentHash(ctx context.Context, hash string) (int64, error) {
	body := fmt.Sprintf(`{"query":{"term":{"content_hash":%q}}}`, hash)
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:   []string{s.indexName},
		Body:    strings.NewReader(body),
		Refresh: &refresh,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("按内容哈希删除失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 按内容哈希删除返回错误: %s", res.String())
		return 0, errors.New("按内容哈希删除返回错误")
	}
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("解析删除响应失败: %w", err)
	}
	log.Infof("[ES] 删除内容哈希 %s 的 %d 条向量", hash, out.Deleted)
	return out.Deleted, nil
}
