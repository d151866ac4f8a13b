package service

import (
	"context"
	"testing"

	"campus-rag-go/internal/model"
	"campus-rag-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConversationRepo() repository.ConversationRepository {
	return repository.NewConversationRepository(nil)
}

func TestChatTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"What is the exam date?", "Is the exam date"},
		{"tell me about hostel fees", "About hostel fees"},
		{"fee deadline", "Fee deadline"},
		{"", "New Chat"},
		{"???", "New Chat"},
		{"registration process for the winter semester", "Registration process f..."},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			assert.Equal(t, c.want, ChatTitle(c.in))
		})
	}
}

func TestConversationService(t *testing.T) {
	ctx := context.Background()
	svc := NewConversationService(newTestConversationRepo())

	t.Run("缺少 ID 的线程被拒绝", func(t *testing.T) {
		err := svc.SaveThread(ctx, "alice", model.ChatThread{})
		assert.ErrorIs(t, err, ErrInvalidThread)
	})

	t.Run("追加问答并生成标题", func(t *testing.T) {
		require.NoError(t, svc.AppendExchange(ctx, "alice", "t1", "When is the fee deadline?", "20 March."))
		require.NoError(t, svc.AppendExchange(ctx, "alice", "t1", "And the exam?", "15 March."))

		threads, err := svc.ListThreads(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, threads, 1)
		assert.Equal(t, "Is the fee deadline", threads[0].Title)
		require.Len(t, threads[0].Messages, 4)
		assert.Equal(t, "user", threads[0].Messages[2].Sender)
		assert.Equal(t, "bot", threads[0].Messages[3].Sender)
	})

	t.Run("删除后返回剩余数量", func(t *testing.T) {
		require.NoError(t, svc.AppendExchange(ctx, "alice", "t2", "hostel rules", "See handbook."))
		left, err := svc.DeleteThread(ctx, "alice", "t1")
		require.NoError(t, err)
		assert.Equal(t, 1, left)
	})
}
