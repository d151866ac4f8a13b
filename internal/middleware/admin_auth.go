package middleware

import (
	"net/http"

	"campus-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查调用方是否具有管理员角色。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取调用方信息", "data": nil})
			return
		}
		if claims.Role != token.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要管理员权限", "data": nil})
			return
		}
		c.Next()
	}
}
