package database

import (
	"context"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。Addr 为空时返回 nil，调用方据此关闭缓存和重试计数。
func InitRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Info("[Redis] 未配置地址, 跳过初始化")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("[Redis] 连接失败, 将在无缓存模式下运行: %v", err)
		_ = client.Close()
		return nil
	}
	RDB = client
	log.Info("[Redis] Redis client connected successfully")
	return client
}
