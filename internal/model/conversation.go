package model

import "time"

// ChatMessage 是对话线程中的一条消息。
type ChatMessage struct {
	Sender    string    `json:"sender"` // "user" 或 "bot"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatThread 是一个可在多设备间同步的对话线程。
type ChatThread struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Messages     []ChatMessage `json:"messages"`
	Timestamp    time.Time     `json:"timestamp"`
	DeviceID     string        `json:"deviceId,omitempty"`
	LastModified int64         `json:"lastModified"`
	IsPinned     bool          `json:"isPinned"`
	IsArchived   bool          `json:"isArchived"`
}
