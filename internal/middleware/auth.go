// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"campus-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// ClaimsKey 是 JWT 声明在 Gin 上下文中的键。
const ClaimsKey = "claims"

// bearerToken 读取 Authorization 头。浏览器的 WebSocket 无法设置请求头，所以也接受 ?token= 参数。
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix), true
	}
	if authHeader == "" {
		if t := c.Query("token"); t != "" {
			return t, true
		}
	}
	return "", false
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证通过后把声明存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}
		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// OptionalAuth 在携带有效 token 时写入声明，否则按匿名请求放行。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if claims, err := jwtManager.VerifyToken(tokenString); err == nil {
				c.Set(ClaimsKey, claims)
			}
		}
		c.Next()
	}
}

// Claims 返回当前请求的 JWT 声明，匿名请求返回 nil。
func Claims(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}

// Subject 返回当前调用方标识，匿名请求返回空字符串。
func Subject(c *gin.Context) string {
	if claims := Claims(c); claims != nil {
		return claims.Subject
	}
	return ""
}
