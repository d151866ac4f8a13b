// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"campus-rag-go/internal/model"
	"campus-rag-go/internal/repository"
)

// ErrInvalidThread 表示提交的对话线程缺少必要字段。
var ErrInvalidThread = errors.New("chat thread id is required")

var (
	questionLead  = regexp.MustCompile(`(?i)^(what|how|when|where|why|who|tell me|can you|please|could you)\s+`)
	trailingMarks = regexp.MustCompile(`\?+$`)
)

const maxTitleRunes = 25

// ConversationService 定义了对话线程同步的业务逻辑接口。
type ConversationService interface {
	ListThreads(ctx context.Context, owner string) ([]model.ChatThread, error)
	SaveThread(ctx context.Context, owner string, thread model.ChatThread) error
	DeleteThread(ctx context.Context, owner, threadID string) (int, error)
	AppendExchange(ctx context.Context, owner, threadID, question, answer string) error
}

type conversationService struct {
	repo repository.ConversationRepository
	now  func() time.Time
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo, now: time.Now}
}

func (s *conversationService) ListThreads(ctx context.Context, owner string) ([]model.ChatThread, error) {
	return s.repo.List(ctx, owner)
}

// SaveThread 保存客户端提交的线程，标题缺省时由第一条用户消息生成。
func (s *conversationService) SaveThread(ctx context.Context, owner string, thread model.ChatThread) error {
	if strings.TrimSpace(thread.ID) == "" {
		return ErrInvalidThread
	}
	if thread.Title == "" {
		thread.Title = ChatTitle(firstUserMessage(thread.Messages))
	}
	if thread.Timestamp.IsZero() {
		thread.Timestamp = s.now()
	}
	return s.repo.Save(ctx, owner, thread)
}

func (s *conversationService) DeleteThread(ctx context.Context, owner, threadID string) (int, error) {
	return s.repo.Delete(ctx, owner, threadID)
}

// AppendExchange 把一轮问答追加到线程末尾，线程不存在时新建。
func (s *conversationService) AppendExchange(ctx context.Context, owner, threadID, question, answer string) error {
	threads, err := s.repo.List(ctx, owner)
	if err != nil {
		return err
	}
	now := s.now()
	thread := model.ChatThread{ID: threadID, Timestamp: now}
	for _, t := range threads {
		if t.ID == threadID {
			thread = t
			break
		}
	}
	thread.Messages = append(thread.Messages,
		model.ChatMessage{Sender: "user", Message: question, Timestamp: now},
		model.ChatMessage{Sender: "bot", Message: answer, Timestamp: now},
	)
	thread.Timestamp = now
	return s.SaveThread(ctx, owner, thread)
}

func firstUserMessage(messages []model.ChatMessage) string {
	for _, m := range messages {
		if m.Sender == "user" {
			return m.Message
		}
	}
	return ""
}

// ChatTitle 从第一条问题生成简短标题。
func ChatTitle(first string) string {
	title := questionLead.ReplaceAllString(first, "")
	title = strings.TrimSpace(trailingMarks.ReplaceAllString(title, ""))
	if title == "" {
		return "New Chat"
	}
	if runes := []rune(title); len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes-3]) + "..."
	}
	r, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(r)) + title[size:]
}
