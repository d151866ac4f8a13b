package handler

import (
	"errors"
	"net/http"

	"campus-rag-go/internal/middleware"
	"campus-rag-go/internal/model"
	"campus-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理对话线程同步的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// ListThreads 返回调用方最近的对话线程。
func (h *ConversationHandler) ListThreads(c *gin.Context) {
	threads, err := h.service.ListThreads(c.Request.Context(), middleware.Subject(c))
	if err != nil {
		respond(c, http.StatusInternalServerError, "Failed to retrieve chats", nil)
		return
	}
	ok(c, "success", threads)
}

// SaveThread 新增或更新一个对话线程。
func (h *ConversationHandler) SaveThread(c *gin.Context) {
	var thread model.ChatThread
	if err := c.ShouldBindJSON(&thread); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求体", nil)
		return
	}
	thread.ID = c.Param("id")
	if err := h.service.SaveThread(c.Request.Context(), middleware.Subject(c), thread); err != nil {
		if errors.Is(err, service.ErrInvalidThread) {
			respond(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respond(c, http.StatusInternalServerError, "Failed to save chat", nil)
		return
	}
	ok(c, "Chat updated successfully", nil)
}

// DeleteThread 删除一个对话线程。
func (h *ConversationHandler) DeleteThread(c *gin.Context) {
	left, err := h.service.DeleteThread(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if err != nil {
		respond(c, http.StatusInternalServerError, "Failed to delete chat", nil)
		return
	}
	ok(c, "Chat deleted successfully", gin.H{"chatCount": left})
}
