// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Events        EventsConfig        `mapstructure:"events"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Vector        VectorConfig        `mapstructure:"vector"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Breaker       BreakerConfig       `mapstructure:"breaker"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string `mapstructure:"port"`
	Mode           string `mapstructure:"mode"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储嵌入式 SQLite 数据库的配置。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用 Redis。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig 存储 pgvector 所用 Postgres 的配置。
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// EventsConfig 选择事件库与文档记录所使用的关系型数据库。
type EventsConfig struct {
	Driver       string `mapstructure:"driver"` // mysql | sqlite
	UpcomingDays int    `mapstructure:"upcoming_days"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时异步导入不可用。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ExtractionConfig 选择原始文本提取的实现。
type ExtractionConfig struct {
	Provider string `mapstructure:"provider"` // native | tika
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// VectorConfig 选择向量索引后端。
type VectorConfig struct {
	Backend   string `mapstructure:"backend"` // elasticsearch | pgvector | memory
	BatchSize int    `mapstructure:"batch_size"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	Model           string `mapstructure:"model"`
	Dimensions      int    `mapstructure:"dimensions"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RetrievalConfig 配置检索引擎的 topK 与阈值。
type RetrievalConfig struct {
	IdentifierTopK      int     `mapstructure:"identifier_top_k"`
	SemanticTopK        int     `mapstructure:"semantic_top_k"`
	FallbackTopK        int     `mapstructure:"fallback_top_k"`
	IdentifierThreshold float64 `mapstructure:"identifier_threshold"`
	SemanticThreshold   float64 `mapstructure:"semantic_threshold"`
	DedupePrefix        int     `mapstructure:"dedupe_prefix"`
}

// ChunkingConfig 配置通用递归切块与行累积切块的参数。
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	MaxBlockSize int `mapstructure:"max_block_size"`
}

// IngestionConfig 配置文档导入。
type IngestionConfig struct {
	Workers       int `mapstructure:"workers"`
	MaxFileSizeMB int `mapstructure:"max_file_size_mb"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// RateLimitConfig 配置聊天与检索接口的限流。
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BreakerConfig 配置外部服务熔断器。
type BreakerConfig struct {
	MaxRequests     uint32  `mapstructure:"max_requests"`
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	MinRequests     uint32  `mapstructure:"min_requests"`
	FailureRatio    float64 `mapstructure:"failure_ratio"`
}

// TelemetryConfig 配置 OpenTelemetry 链路追踪。
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// Init 从指定路径读取 YAML 文件并解析到 Conf 变量中。
// 工作目录下的 .env 会先被加载，环境变量可以覆盖任意键，例如 LLM_API_KEY。
func Init(configPath string) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := v.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// Defaults 返回只包含默认值的配置，供测试和命令行工具使用。
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("events.driver", "sqlite")
	v.SetDefault("events.upcoming_days", 30)
	v.SetDefault("database.sqlite.path", "./data/campus.db")
	v.SetDefault("kafka.topic", "document-ingestion")
	v.SetDefault("kafka.group_id", "campus-rag-ingestion")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("extraction.provider", "native")
	v.SetDefault("elasticsearch.index_name", "campus_knowledge")
	v.SetDefault("vector.backend", "elasticsearch")
	v.SetDefault("vector.batch_size", 50)
	v.SetDefault("embedding.model", "text-embedding-3-large")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.generation.temperature", 0.6)
	v.SetDefault("llm.generation.max_tokens", 1500)
	v.SetDefault("retrieval.identifier_top_k", 25)
	v.SetDefault("retrieval.semantic_top_k", 12)
	v.SetDefault("retrieval.fallback_top_k", 15)
	v.SetDefault("retrieval.identifier_threshold", 0.45)
	v.SetDefault("retrieval.semantic_threshold", 0.0)
	v.SetDefault("retrieval.dedupe_prefix", 100)
	v.SetDefault("chunking.chunk_size", 2000)
	v.SetDefault("chunking.chunk_overlap", 400)
	v.SetDefault("chunking.max_block_size", 1500)
	v.SetDefault("ingestion.workers", 4)
	v.SetDefault("ingestion.max_file_size_mb", 10)
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("breaker.max_requests", 5)
	v.SetDefault("breaker.interval_seconds", 10)
	v.SetDefault("breaker.timeout_seconds", 30)
	v.SetDefault("breaker.min_requests", 3)
	v.SetDefault("breaker.failure_ratio", 0.6)
	v.SetDefault("telemetry.service_name", "campus-rag-go")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 0.1)
}
