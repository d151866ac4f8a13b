package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProcessor struct {
	failures int
	calls    int
}

func (p *scriptedProcessor) Process(_ context.Context, _ tasks.IngestionTask) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("boom")
	}
	return nil
}

func taskBytes(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(tasks.IngestionTask{ContentHash: "abc", FileName: "calendar.pdf"})
	require.NoError(t, err)
	return b
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("成功后清除计数", func(t *testing.T) {
		p := &scriptedProcessor{failures: 1}
		counter := NewAttemptCounter(nil)
		ok := handleMessage(ctx, taskBytes(t), p, counter, 3, 0)
		assert.True(t, ok)
		assert.Equal(t, 2, p.calls)
		n, _ := counter.Incr(ctx, "kafka:attempts:abc")
		assert.Equal(t, int64(1), n)
	})

	t.Run("达到最大次数后放弃", func(t *testing.T) {
		p := &scriptedProcessor{failures: 10}
		ok := handleMessage(ctx, taskBytes(t), p, NewAttemptCounter(nil), 3, 0)
		assert.False(t, ok)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("无法解析的消息", func(t *testing.T) {
		p := &scriptedProcessor{}
		ok := handleMessage(ctx, []byte("{not json"), p, NewAttemptCounter(nil), 3, 0)
		assert.False(t, ok)
		assert.Zero(t, p.calls)
	})

	t.Run("上下文取消时停止重试", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		p := &scriptedProcessor{failures: 10}
		ok := handleMessage(cctx, taskBytes(t), p, NewAttemptCounter(nil), 3, 0)
		assert.False(t, ok)
		assert.Equal(t, 1, p.calls)
	})
}

func TestNotConfigured(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Brokers: " , "})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewConsumer(config.KafkaConfig{}, &scriptedProcessor{}, NewAttemptCounter(nil))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, splitBrokers(""))
}
