package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"campus-rag-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// cachedClient serves repeated texts from Redis and only sends misses upstream.
type cachedClient struct {
	inner Client
	rdb   *redis.Client
	ttl   time.Duration
	model string
}

// NewCachedClient wraps inner with a Redis cache. A nil rdb disables caching.
func NewCachedClient(inner Client, rdb *redis.Client, model string, ttl time.Duration) Client {
	if rdb == nil {
		return inner
	}
	return &cachedClient{inner: inner, rdb: rdb, ttl: ttl, model: model}
}

func (c *cachedClient) key(text string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", c.model, hex.EncodeToString(sum[:]))
}

func (c *cachedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		// 缓存不可用时直接走上游。
		log.Warnf("[EmbeddingCache] 读取缓存失败, error: %v", err)
		return c.inner.Embed(ctx, texts)
	}

	var missIdx []int
	var missTexts []string
	for i, v := range cached {
		s, ok := v.(string)
		if ok {
			var vec []float32
			if json.Unmarshal([]byte(s), &vec) == nil && len(vec) > 0 {
				vectors[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		log.Debugf("[EmbeddingCache] 全部命中缓存, 数量: %d", len(texts))
		return vectors, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		vectors[i] = fresh[j]
		if b, err := json.Marshal(fresh[j]); err == nil {
			pipe.Set(ctx, keys[i], b, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[EmbeddingCache] 写入缓存失败, error: %v", err)
	}
	log.Debugf("[EmbeddingCache] 命中 %d, 未命中 %d", len(texts)-len(missTexts), len(missTexts))
	return vectors, nil
}
