package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDKey 是请求 ID 在 Gin 上下文中的键。
	RequestIDKey    = "requestId"
	requestIDHeader = "X-Request-ID"
)

// RequestID 沿用客户端传入的 X-Request-ID，缺省时生成一个 UUID，并回写到响应头。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
