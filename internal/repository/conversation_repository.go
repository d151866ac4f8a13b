package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"campus-rag-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	// MaxChatThreads 是每个用户保留的对话线程上限。
	MaxChatThreads = 15
	// ChatRetention 之前的线程在读取时被清理。
	ChatRetention = 30 * 24 * time.Hour
)

// ConversationRepository 定义了对话线程的存取接口，以调用方标识区分用户。
type ConversationRepository interface {
	List(ctx context.Context, owner string) ([]model.ChatThread, error)
	Save(ctx context.Context, owner string, thread model.ChatThread) error
	Delete(ctx context.Context, owner, threadID string) (int, error)
}

// NewConversationRepository 在有 Redis 时使用 Redis 存储，否则使用进程内存储。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	if redisClient == nil {
		return newMemoryConversationRepository(time.Now)
	}
	return &redisConversationRepository{redisClient: redisClient, now: time.Now}
}

// keepValid 丢弃过期或没有消息的线程，按最近修改时间倒序并截断到上限。
func keepValid(threads []model.ChatThread, now time.Time) (valid, dropped []model.ChatThread) {
	cutoff := now.Add(-ChatRetention)
	for _, t := range threads {
		if t.Timestamp.After(cutoff) && len(t.Messages) > 0 {
			valid = append(valid, t)
		} else {
			dropped = append(dropped, t)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].LastModified > valid[j].LastModified })
	if len(valid) > MaxChatThreads {
		dropped = append(dropped, valid[MaxChatThreads:]...)
		valid = valid[:MaxChatThreads]
	}
	return valid, dropped
}

type redisConversationRepository struct {
	redisClient *redis.Client
	now         func() time.Time
}

func chatKey(owner string) string {
	return fmt.Sprintf("chats:%s", owner)
}

func (r *redisConversationRepository) load(ctx context.Context, owner string) ([]model.ChatThread, error) {
	raw, err := r.redisClient.HGetAll(ctx, chatKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat threads: %w", err)
	}
	threads := make([]model.ChatThread, 0, len(raw))
	for _, v := range raw {
		var t model.ChatThread
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		threads = append(threads, t)
	}
	return threads, nil
}

// List 返回有效线程，并顺带清理过期线程。
func (r *redisConversationRepository) List(ctx context.Context, owner string) ([]model.ChatThread, error) {
	threads, err := r.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	valid, dropped := keepValid(threads, r.now())
	if len(dropped) > 0 {
		ids := make([]string, len(dropped))
		for i, t := range dropped {
			ids[i] = t.ID
		}
		_ = r.redisClient.HDel(ctx, chatKey(owner), ids...).Err()
	}
	if valid == nil {
		valid = []model.ChatThread{}
	}
	return valid, nil
}

// Save 新增或覆盖一个线程。
func (r *redisConversationRepository) Save(ctx context.Context, owner string, thread model.ChatThread) error {
	thread.LastModified = r.now().UnixMilli()
	data, err := json.Marshal(thread)
	if err != nil {
		return fmt.Errorf("failed to marshal chat thread: %w", err)
	}
	key := chatKey(owner)
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, key, thread.ID, data)
	pipe.Expire(ctx, key, ChatRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save chat thread: %w", err)
	}
	// 超出上限的旧线程在这里裁掉
	_, err = r.List(ctx, owner)
	return err
}

// Delete 删除一个线程，返回剩余线程数。
func (r *redisConversationRepository) Delete(ctx context.Context, owner, threadID string) (int, error) {
	key := chatKey(owner)
	if err := r.redisClient.HDel(ctx, key, threadID).Err(); err != nil {
		return 0, fmt.Errorf("failed to delete chat thread: %w", err)
	}
	n, err := r.redisClient.HLen(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type memoryConversationRepository struct {
	mu      sync.Mutex
	threads map[string][]model.ChatThread
	now     func() time.Time
}

func newMemoryConversationRepository(now func() time.Time) *memoryConversationRepository {
	return &memoryConversationRepository{threads: make(map[string][]model.ChatThread), now: now}
}

func (r *memoryConversationRepository) List(_ context.Context, owner string) ([]model.ChatThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	valid, _ := keepValid(r.threads[owner], r.now())
	r.threads[owner] = valid
	out := make([]model.ChatThread, len(valid))
	copy(out, valid)
	return out, nil
}

func (r *memoryConversationRepository) Save(_ context.Context, owner string, thread model.ChatThread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	thread.LastModified = r.now().UnixMilli()
	threads := r.threads[owner]
	replaced := false
	for i := range threads {
		if threads[i].ID == thread.ID {
			threads[i] = thread
			replaced = true
			break
		}
	}
	if !replaced {
		threads = append(threads, thread)
	}
	r.threads[owner], _ = keepValid(threads, r.now())
	return nil
}

func (r *memoryConversationRepository) Delete(_ context.Context, owner, threadID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	threads := r.threads[owner][:0]
	for _, t := range r.threads[owner] {
		if t.ID != threadID {
			threads = append(threads, t)
		}
	}
	r.threads[owner] = threads
	return len(threads), nil
}
