package handler

import (
	"net/http"

	"campus-rag-go/internal/service"
	"campus-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// EventHandler 处理学术日历事件的查询。
type EventHandler struct {
	eventService service.EventService
}

// NewEventHandler 创建一个新的 EventHandler。
func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// ListEvents 支持 type、upcoming、search、fromDate、toDate、limit、stats 参数。
func (h *EventHandler) ListEvents(c *gin.Context) {
	var q service.EventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respond(c, http.StatusBadRequest, "无效的查询参数: "+err.Error(), nil)
		return
	}

	res, err := h.eventService.Query(c.Request.Context(), q)
	if err != nil {
		log.Errorf("[EventHandler] 查询事件失败: %v", err)
		respond(c, http.StatusInternalServerError, "Failed to retrieve events", gin.H{"error": err.Error()})
		return
	}
	ok(c, res.Message, res)
}
