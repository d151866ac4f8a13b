package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 是健康检查依赖的组件。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler 报告服务及其数据库的可用性。
type HealthHandler struct {
	db            Pinger
	vectorBackend string
}

// NewHealthHandler 创建一个新的 HealthHandler。db 为 nil 时不检查数据库。
func NewHealthHandler(db Pinger, vectorBackend string) *HealthHandler {
	return &HealthHandler{db: db, vectorBackend: vectorBackend}
}

// Health 处理健康检查请求。
func (h *HealthHandler) Health(c *gin.Context) {
	data := gin.H{"vectorBackend": h.vectorBackend, "time": time.Now().UTC().Format(time.RFC3339)}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			data["database"] = err.Error()
			respond(c, http.StatusServiceUnavailable, "unhealthy", data)
			return
		}
		data["database"] = "ok"
	}
	ok(c, "ok", data)
}
