package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": Subject(c)})
	})
	return r
}

func do(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	admin, err := jwt.GenerateToken("ops", token.RoleAdmin)
	require.NoError(t, err)
	reader, err := jwt.GenerateToken("student", token.RoleReader)
	require.NoError(t, err)

	r := newRouter(AuthMiddleware(jwt), AdminAuthMiddleware())

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"缺少授权头", nil, http.StatusUnauthorized},
		{"格式错误", map[string]string{"Authorization": admin}, http.StatusUnauthorized},
		{"无效 token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"非管理员", map[string]string{"Authorization": "Bearer " + reader}, http.StatusForbidden},
		{"管理员", map[string]string{"Authorization": "Bearer " + admin}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(r, tt.header).Code)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	jwt := token.NewJWTManager("secret", 1)
	tok, err := jwt.GenerateToken("student", token.RoleReader)
	require.NoError(t, err)
	r := newRouter(OptionalAuth(jwt))

	w := do(r, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subject":""}`, w.Body.String())

	w = do(r, map[string]string{"Authorization": "Bearer " + tok})
	assert.JSONEq(t, `{"subject":"student"}`, w.Body.String())

	t.Run("WebSocket 使用查询参数携带 token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?token="+tok, nil))
		assert.JSONEq(t, `{"subject":"student"}`, w.Body.String())
	})
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())
	assert.NotEmpty(t, do(r, nil).Header().Get("X-Request-ID"))
	assert.Equal(t, "abc", do(r, map[string]string{"X-Request-ID": "abc"}).Header().Get("X-Request-ID"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
	r := newRouter(rl.Middleware())

	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, nil).Code)

	unlimited := newRouter(NewRateLimiter(config.RateLimitConfig{}).Middleware())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(unlimited, nil).Code)
	}
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Minute))
	r.GET("/deadline", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": ok})
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deadline", nil))
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}
