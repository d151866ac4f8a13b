// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"
	"campus-rag-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// ErrNotConfigured 表示没有配置 Kafka broker。
var ErrNotConfigured = errors.New("kafka brokers not configured")

// TaskProcessor 是能够处理导入任务的服务，消费者不依赖具体的流水线实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
}

// Producer 把导入任务写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	brokers := splitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, ErrNotConfigured
	}
	log.Infof("[Kafka] 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}, nil
}

// ProduceIngestionTask 发送一个导入任务，以内容哈希作为消息键。
func (p *Producer) ProduceIngestionTask(ctx context.Context, task tasks.IngestionTask) error {
	value, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.ContentHash), Value: value})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptCounter 记录每个任务的失败次数，使重试次数在进程重启后依然有效。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string)
}

// NewAttemptCounter 在有 Redis 时使用 Redis 计数，否则退化为进程内计数。
func NewAttemptCounter(rdb *redis.Client) AttemptCounter {
	if rdb == nil {
		return &memoryCounter{counts: make(map[string]int64)}
	}
	return &redisCounter{rdb: rdb, ttl: 24 * time.Hour}
}

type redisCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func (c *redisCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, c.ttl).Err()
	return n, nil
}

func (c *redisCounter) Reset(ctx context.Context, key string) {
	_ = c.rdb.Del(ctx, key).Err()
}

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *memoryCounter) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func (c *memoryCounter) Reset(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
}

// Consumer 从 Kafka 读取导入任务并交给 TaskProcessor 处理。
type Consumer struct {
	reader      *kafka.Reader
	processor   TaskProcessor
	counter     AttemptCounter
	maxAttempts int64
	backoff     time.Duration
}

// NewConsumer 创建消费者，maxAttempts 小于 1 时按 1 处理。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) (*Consumer, error) {
	brokers := splitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, ErrNotConfigured
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}),
		processor:   processor,
		counter:     counter,
		maxAttempts: int64(max(cfg.MaxAttempts, 1)),
		backoff:     2 * time.Second,
	}, nil
}

// Run 持续消费直到 ctx 被取消。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", c.reader.Config().Topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}
		log.Infof("[Kafka] 收到消息: offset %d", m.Offset)

		handleMessage(ctx, m.Value, c.processor, c.counter, c.maxAttempts, c.backoff)
		if ctx.Err() != nil {
			// 处理被中断的消息不提交，重启后会重新投递
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Errorf("[Kafka] 提交 offset 失败: %v", err)
		}
	}
}

// handleMessage 处理一条消息，失败时在达到最大次数前原地重试。
// 返回值表示任务是否最终成功；无论结果如何，调用方都会提交 offset。
func handleMessage(ctx context.Context, value []byte, processor TaskProcessor, counter AttemptCounter, maxAttempts int64, backoff time.Duration) bool {
	var task tasks.IngestionTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(value))
		return false
	}

	key := "kafka:attempts:" + task.ContentHash
	for {
		log.Infof("[Kafka] 开始处理导入任务: hash=%s, file=%s", task.ContentHash, task.FileName)
		err := processor.Process(ctx, task)
		if err == nil {
			counter.Reset(ctx, key)
			log.Infof("[Kafka] 导入任务处理成功: hash=%s", task.ContentHash)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		attempts, incErr := counter.Incr(ctx, key)
		if incErr != nil {
			log.Warnf("[Kafka] 记录失败次数出错: %v", incErr)
			attempts = maxAttempts
		}
		log.Errorf("[Kafka] 导入任务失败(第 %d 次): hash=%s, error: %v", attempts, task.ContentHash, err)
		if attempts >= maxAttempts {
			log.Errorf("[Kafka] 导入任务多次失败(>=%d)，放弃重试: hash=%s", maxAttempts, task.ContentHash)
			counter.Reset(ctx, key)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
