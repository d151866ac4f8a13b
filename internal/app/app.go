// Package app 负责根据配置装配各个组件，供 HTTP 服务与命令行工具共用。
package app

import (
	"context"
	"fmt"
	"time"

	"campus-rag-go/internal/chunker"
	"campus-rag-go/internal/config"
	"campus-rag-go/internal/events"
	"campus-rag-go/internal/gateway"
	"campus-rag-go/internal/normalizer"
	"campus-rag-go/internal/pipeline"
	"campus-rag-go/internal/repository"
	"campus-rag-go/internal/retrieval"
	"campus-rag-go/internal/service"
	"campus-rag-go/pkg/database"
	"campus-rag-go/pkg/embedding"
	"campus-rag-go/pkg/es"
	"campus-rag-go/pkg/extractor"
	"campus-rag-go/pkg/kafka"
	"campus-rag-go/pkg/llm"
	"campus-rag-go/pkg/log"
	"campus-rag-go/pkg/memstore"
	"campus-rag-go/pkg/pgstore"
	"campus-rag-go/pkg/storage"
	"campus-rag-go/pkg/tika"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
)

// App 持有装配好的组件。可选组件（Redis、对象存储、Kafka）未配置时为 nil。
type App struct {
	Config config.Config

	DB       *gorm.DB
	Redis    *redis.Client
	Objects  *storage.ObjectStore
	Producer *kafka.Producer

	EventRepo repository.EventRepository
	DocRepo   repository.DocumentRepository
	Processor *pipeline.Processor

	Chat          service.ChatService
	Search        service.SearchService
	Events        service.EventService
	Documents     service.DocumentService
	Conversations service.ConversationService

	pools []*pgxpool.Pool
}

// New 建立数据库连接、注册向量网关并构造所有服务。
// 向量网关是惰性的：嵌入服务或索引不可用不会阻止启动，首次使用时才会报错。
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := database.OpenRelational(cfg.Events, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}
	a.Redis = database.InitRedis(ctx, cfg.Database.Redis)

	gateway.Init(a.gatewayFactory())

	if cfg.MinIO.Endpoint != "" {
		objects, err := storage.NewObjectStore(ctx, cfg.MinIO)
		if err != nil {
			log.Warnf("[App] MinIO 初始化失败，原始文件将不会被保存: %v", err)
		} else {
			a.Objects = objects
		}
	}
	if cfg.Kafka.Brokers != "" {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Warnf("[App] Kafka 生产者初始化失败，异步导入不可用: %v", err)
		} else {
			a.Producer = producer
		}
	}

	a.EventRepo = repository.NewEventRepository(db)
	a.DocRepo = repository.NewDocumentRepository(db)

	maxBytes := int64(cfg.Ingestion.MaxFileSizeMB) << 20
	var objectReader pipeline.ObjectReader
	var objectStore service.ObjectStore
	var producer service.TaskProducer
	if a.Objects != nil {
		objectReader, objectStore = a.Objects, a.Objects
	}
	if a.Producer != nil {
		producer = a.Producer
	}

	a.Processor = pipeline.NewProcessor(
		NewExtractor(cfg),
		NewChunker(cfg.Chunking),
		events.NewExtractor(),
		pipeline.SingletonGateway(),
		a.EventRepo,
		a.DocRepo,
		objectReader,
		pipeline.Config{MaxFileBytes: maxBytes, Workers: cfg.Ingestion.Workers},
	)

	engines := service.GatewayEngine(retrieval.OptionsFromConfig(cfg.Retrieval, cfg.LLM))
	a.Conversations = service.NewConversationService(repository.NewConversationRepository(a.Redis))
	a.Chat = service.NewChatService(engines, llm.NewClient(cfg.LLM), a.Conversations)
	a.Search = service.NewSearchService(engines)
	a.Events = service.NewEventService(a.EventRepo, cfg.Events.UpcomingDays)
	a.Documents = service.NewDocumentService(a.Processor, a.DocRepo, objectStore, producer, maxBytes)
	return a, nil
}

// NewConsumer 在配置了 Kafka 与对象存储时返回导入任务的消费者。
func (a *App) NewConsumer() (*kafka.Consumer, error) {
	if a.Producer == nil || a.Objects == nil {
		return nil, kafka.ErrNotConfigured
	}
	return kafka.NewConsumer(a.Config.Kafka, a.Processor, kafka.NewAttemptCounter(a.Redis))
}

// Close 释放所有连接。
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			log.Warnf("[App] 关闭 Kafka 生产者失败: %v", err)
		}
	}
	for _, p := range a.pools {
		p.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	gateway.Reset()
}

// NewExtractor 根据 extraction.provider 选择原始文本提取实现。
func NewExtractor(cfg config.Config) normalizer.Extractor {
	if cfg.Extraction.Provider == "tika" && cfg.Tika.ServerURL != "" {
		return tika.NewClient(cfg.Tika)
	}
	return extractor.NewNative()
}

// NewChunker 按配置创建切块器。
func NewChunker(cfg config.ChunkingConfig) *chunker.Chunker {
	return chunker.New(
		chunker.WithChunkSize(cfg.ChunkSize),
		chunker.WithOverlap(cfg.ChunkOverlap),
		chunker.WithMaxBlockSize(cfg.MaxBlockSize),
	)
}

// NewEmbedder 创建嵌入客户端。有 Redis 且配置了缓存时间时包一层缓存。
func NewEmbedder(cfg config.EmbeddingConfig, rdb *redis.Client) embedding.Client {
	client := embedding.NewClient(cfg)
	if rdb == nil || cfg.CacheTTLMinutes <= 0 {
		return client
	}
	return embedding.NewCachedClient(client, rdb, cfg.Model, time.Duration(cfg.CacheTTLMinutes)*time.Minute)
}

func (a *App) gatewayFactory() gateway.Factory {
	cfg := a.Config
	return func(ctx context.Context) (*gateway.Gateway, error) {
		index, err := a.openIndex(ctx)
		if err != nil {
			return nil, err
		}
		log.Infof("[App] 向量索引后端: %s", backendName(cfg.Vector.Backend))
		return gateway.New(NewEmbedder(cfg.Embedding, a.Redis), index, cfg.Breaker, cfg.Vector.BatchSize), nil
	}
}

func (a *App) openIndex(ctx context.Context) (gateway.Index, error) {
	cfg := a.Config
	switch backendName(cfg.Vector.Backend) {
	case "memory":
		return memstore.New(), nil
	case "pgvector":
		pool, err := database.InitPostgres(ctx, cfg.Database.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		if err := pgstore.EnsureSchema(ctx, pool, cfg.Embedding.Dimensions); err != nil {
			pool.Close()
			return nil, err
		}
		a.pools = append(a.pools, pool)
		return pgstore.NewStore(pool), nil
	case "elasticsearch":
		if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
			return nil, fmt.Errorf("elasticsearch 初始化失败: %w", err)
		}
		return es.NewStore(es.ESClient, cfg.Elasticsearch.IndexName), nil
	}
	return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
}

func backendName(b string) string {
	if b == "" {
		return "elasticsearch"
	}
	return b
}
