package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"campus-rag-go/internal/middleware"
	"campus-rag-go/internal/retrieval"
	"campus-rag-go/internal/service"
	"campus-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理聊天请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat 处理一次完整的问答请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		respond(c, http.StatusBadRequest, "message is required", nil)
		return
	}
	log.Infof("[ChatHandler] 收到聊天请求, message: %q", req.Message)

	resp, err := h.chatService.Answer(c.Request.Context(), middleware.Subject(c), req)
	if err != nil {
		log.Errorf("[ChatHandler] 处理聊天请求失败: %v", err)
		respond(c, http.StatusInternalServerError, retrieval.ErrorReply, gin.H{
			"response": retrieval.ErrorReply,
			"error":    err.Error(),
		})
		return
	}
	ok(c, "success", resp)
}

// wsControl 是客户端通过 WebSocket 发送的消息。type 为 "stop" 时中断当前回答。
type wsControl struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

// Stream 处理一个 WebSocket 聊天连接。客户端可以发送纯文本问题或 JSON 消息。
func (h *ChatHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[ChatHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	owner := middleware.Subject(c)
	log.Infof("[ChatHandler] WebSocket 连接已建立, subject: %q", owner)

	var stop atomic.Bool
	queries := make(chan service.ChatRequest, 8)
	done := make(chan struct{})
	defer close(done)
	go readQueries(conn, queries, done, &stop)

	for req := range queries {
		stop.Store(false)
		_, err := h.chatService.StreamResponse(c.Request.Context(), owner, req, conn, stop.Load)
		if err == nil {
			continue
		}
		log.Errorf("[ChatHandler] 处理流式响应失败: %v", err)
		writeJSON(conn, map[string]interface{}{"error": retrieval.ErrorReply, "detail": err.Error()})
		writeJSON(conn, map[string]interface{}{
			"type":      "completion",
			"status":    "error",
			"timestamp": time.Now().UnixMilli(),
		})
		if errors.Is(err, websocket.ErrCloseSent) {
			return
		}
	}
}

// messageReader 是 *websocket.Conn 的读取部分。
type messageReader interface {
	ReadMessage() (int, []byte, error)
}

// readQueries 把客户端消息转成问题投递到 queries，停止指令只设置 stop。
// 读取出错或 done 关闭时返回并关闭 queries。
func readQueries(conn messageReader, queries chan<- service.ChatRequest, done <-chan struct{}, stop *atomic.Bool) {
	defer close(queries)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Debugf("[ChatHandler] WebSocket 读取结束: %v", err)
			return
		}
		req, isStop := parseWSMessage(message)
		if isStop {
			log.Info("[ChatHandler] 收到停止指令，正在中断流式响应...")
			stop.Store(true)
			continue
		}
		if strings.TrimSpace(req.Message) == "" {
			continue
		}
		select {
		case queries <- req:
		case <-done:
			return
		}
	}
}

func parseWSMessage(message []byte) (service.ChatRequest, bool) {
	if len(message) > 0 && message[0] == '{' {
		var ctrl wsControl
		if err := json.Unmarshal(message, &ctrl); err == nil {
			if ctrl.Type == "stop" {
				return service.ChatRequest{}, true
			}
			return service.ChatRequest{Message: ctrl.Message, ChatID: ctrl.ChatID}, false
		}
	}
	return service.ChatRequest{Message: string(message)}, false
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, _ := json.Marshal(v)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
