package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"campus-rag-go/internal/middleware"
	"campus-rag-go/internal/model"
	"campus-rag-go/internal/repository"
	"campus-rag-go/internal/service"
	"campus-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationHandler(t *testing.T) {
	jwtManager := token.NewJWTManager("test-secret", 1)
	h := NewConversationHandler(service.NewConversationService(repository.NewConversationRepository(nil)))

	r := gin.New()
	chats := r.Group("/chats", middleware.AuthMiddleware(jwtManager))
	chats.GET("", h.ListThreads)
	chats.PUT("/:id", h.SaveThread)
	chats.DELETE("/:id", h.DeleteThread)

	tok, err := jwtManager.GenerateToken("alice", token.RoleReader)
	require.NoError(t, err)
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("未认证", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chats", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("保存并列出", func(t *testing.T) {
		w := do(http.MethodPut, "/chats/t1", `{"messages":[{"sender":"user","message":"When is the fee deadline?"}]}`)
		require.Equal(t, http.StatusOK, w.Code)

		w = do(http.MethodGet, "/chats", "")
		require.Equal(t, http.StatusOK, w.Code)
		var threads []model.ChatThread
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &threads))
		require.Len(t, threads, 1)
		assert.Equal(t, "t1", threads[0].ID)
		assert.Equal(t, "Is the fee deadline", threads[0].Title)
	})

	t.Run("删除", func(t *testing.T) {
		w := do(http.MethodDelete, "/chats/t1", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"chatCount":0}`, string(decode(t, w).Data))
	})
}
