package database

import (
	"context"
	"fmt"

	"campus-rag-go/pkg/log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitPostgres 创建 pgvector 后端使用的连接池并确认可用。
func InitPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("创建 Postgres 连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接 Postgres 失败: %w", err)
	}
	log.Info("[Database] Postgres 连接成功")
	return pool, nil
}
