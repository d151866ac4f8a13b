package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"campus-rag-go/internal/model"
	"campus-rag-go/internal/pipeline"
	"campus-rag-go/internal/retrieval"
	"campus-rag-go/internal/service"
	"campus-rag-go/pkg/llm"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type fakeChat struct {
	err    error
	chunks []string
}

func (f *fakeChat) Answer(_ context.Context, _ string, req service.ChatRequest) (*service.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.ChatResponse{Response: "echo: " + req.Message}, nil
}

func (f *fakeChat) StreamResponse(_ context.Context, _ string, req service.ChatRequest, w llm.MessageWriter, _ func() bool) (*service.ChatMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.chunks {
		b, _ := json.Marshal(map[string]string{"chunk": c})
		if err := w.WriteMessage(websocket.TextMessage, b); err != nil {
			return nil, err
		}
	}
	b, _ := json.Marshal(map[string]string{"type": "completion", "status": "finished", "query": req.Message})
	return &service.ChatMetadata{}, w.WriteMessage(websocket.TextMessage, b)
}

func TestChatHandler_Chat(t *testing.T) {
	newRouter := func(chat service.ChatService) *gin.Engine {
		r := gin.New()
		r.POST("/chat", NewChatHandler(chat).Chat)
		return r
	}

	t.Run("返回回答", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"When is the exam?"}`))
		req.Header.Set("Content-Type", "application/json")
		newRouter(&fakeChat{}).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp service.ChatResponse
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
		assert.Equal(t, "echo: When is the exam?", resp.Response)
	})

	t.Run("缺少消息", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"  "}`))
		req.Header.Set("Content-Type", "application/json")
		newRouter(&fakeChat{}).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("失败时返回致歉与错误信息", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"exam"}`))
		req.Header.Set("Content-Type", "application/json")
		newRouter(&fakeChat{err: errors.New("embedding service down")}).ServeHTTP(w, req)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		env := decode(t, w)
		assert.Equal(t, retrieval.ErrorReply, env.Message)
		assert.Contains(t, string(env.Data), "embedding service down")
	})
}

func TestChatHandler_Stream(t *testing.T) {
	r := gin.New()
	r.GET("/chat/ws", NewChatHandler(&fakeChat{chunks: []string{"Exams ", "begin."}}).Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"When is the exam?","chatId":"c1"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var got []map[string]string
	for len(got) < 3 {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var m map[string]string
		require.NoError(t, json.Unmarshal(msg, &m))
		got = append(got, m)
	}
	assert.Equal(t, "Exams ", got[0]["chunk"])
	assert.Equal(t, "begin.", got[1]["chunk"])
	assert.Equal(t, "completion", got[2]["type"])
	assert.Equal(t, "When is the exam?", got[2]["query"])
}

func TestParseWSMessage(t *testing.T) {
	req, stop := parseWSMessage([]byte(`{"type":"stop"}`))
	assert.True(t, stop)
	assert.Empty(t, req.Message)

	req, stop = parseWSMessage([]byte("plain question"))
	assert.False(t, stop)
	assert.Equal(t, "plain question", req.Message)

	req, _ = parseWSMessage([]byte(`{"message":"exam","chatId":"x"}`))
	assert.Equal(t, "x", req.ChatID)
}

type fakeEvents struct {
	got service.EventQuery
}

func (f *fakeEvents) Query(_ context.Context, q service.EventQuery) (*service.EventsResult, error) {
	f.got = q
	events := []model.Event{{Title: "Mid-semester exam", Date: "2024-03-15", EventType: model.EventExam}}
	return &service.EventsResult{
		Events:         events,
		GroupedByMonth: service.GroupByMonth(events),
		Count:          1,
		Message:        "Retrieved 1 events",
	}, nil
}

// endlessReader 每次都返回同一条问题，模拟持续发送消息的客户端。
type endlessReader struct{ message []byte }

func (r endlessReader) ReadMessage() (int, []byte, error) {
	return websocket.TextMessage, r.message, nil
}

// scriptedReader 依次返回预设消息，读完后返回 EOF。
type scriptedReader struct{ messages []string }

func (r *scriptedReader) ReadMessage() (int, []byte, error) {
	if len(r.messages) == 0 {
		return 0, nil, io.EOF
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return websocket.TextMessage, []byte(m), nil
}

func TestReadQueries(t *testing.T) {
	t.Run("连接结束后读取协程退出", func(t *testing.T) {
		queries := make(chan service.ChatRequest, 1)
		done := make(chan struct{})
		var stop atomic.Bool
		exited := make(chan struct{})
		go func() {
			defer close(exited)
			readQueries(endlessReader{message: []byte("When is the exam?")}, queries, done, &stop)
		}()

		first := <-queries
		assert.Equal(t, "When is the exam?", first.Message)
		close(done)

		select {
		case <-exited:
		case <-time.After(time.Second):
			t.Fatal("readQueries did not return after done was closed")
		}
	})

	t.Run("停止指令与空消息", func(t *testing.T) {
		queries := make(chan service.ChatRequest, 8)
		done := make(chan struct{})
		defer close(done)
		var stop atomic.Bool
		r := &scriptedReader{messages: []string{`{"type":"stop"}`, "   ", `{"message":"Fee deadline?","chatId":"c1"}`}}

		readQueries(r, queries, done, &stop)

		assert.True(t, stop.Load())
		var got []service.ChatRequest
		for req := range queries {
			got = append(got, req)
		}
		require.Len(t, got, 1)
		assert.Equal(t, service.ChatRequest{Message: "Fee deadline?", ChatID: "c1"}, got[0])
	})
}

func TestEventHandler_ListEvents(t *testing.T) {
	events := &fakeEvents{}
	r := gin.New()
	r.GET("/events", NewEventHandler(events).ListEvents)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events?upcoming=true&type=exam&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.True(t, events.got.Upcoming)
	assert.Equal(t, "exam", events.got.Type)
	assert.Equal(t, 5, events.got.Limit)

	env := decode(t, w)
	assert.Equal(t, "Retrieved 1 events", env.Message)
	var res service.EventsResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.GroupedByMonth, 1)
	assert.Equal(t, "March", res.GroupedByMonth[0].MonthName)
	assert.Equal(t, "Friday", res.GroupedByMonth[0].Events[0].DayOfWeek)

	t.Run("非法参数", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events?limit=abc", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

type fakeDocs struct {
	service.DocumentService
	uploaded []pipeline.Input
	asyncErr error
}

func (f *fakeDocs) Upload(_ context.Context, files []pipeline.Input) pipeline.BatchResult {
	f.uploaded = files
	return pipeline.BatchResult{Summary: pipeline.BatchSummary{Total: len(files), Succeeded: len(files)}}
}

func (f *fakeDocs) UploadAsync(_ context.Context, _ string, files []pipeline.Input) ([]service.QueuedFile, error) {
	if f.asyncErr != nil {
		return nil, f.asyncErr
	}
	return []service.QueuedFile{{Filename: files[0].FileName, Queued: true}}, nil
}

func (f *fakeDocs) Delete(_ context.Context, _ string) (*pipeline.RemovalResult, error) {
	return nil, service.ErrDocumentNotFound
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestDocumentHandler(t *testing.T) {
	docs := &fakeDocs{}
	h := NewDocumentHandler(docs, 1<<20)
	r := gin.New()
	r.POST("/documents/upload", h.Upload)
	r.DELETE("/documents/:fileName", h.DeleteDocument)

	t.Run("同步上传", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"calendar.txt": "Exam on 15/03/2024"})
		req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, docs.uploaded, 1)
		assert.Equal(t, "calendar.txt", docs.uploaded[0].FileName)
		assert.Equal(t, "Exam on 15/03/2024", string(docs.uploaded[0].Data))
		assert.Contains(t, decode(t, w).Message, "1 succeeded")
	})

	t.Run("异步上传未配置", func(t *testing.T) {
		docs.asyncErr = service.ErrAsyncUnavailable
		defer func() { docs.asyncErr = nil }()
		body, ct := multipartBody(t, map[string]string{"a.pdf": "x"})
		req := httptest.NewRequest(http.MethodPost, "/documents/upload?async=true", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("异步上传受理", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"a.pdf": "x"})
		req := httptest.NewRequest(http.MethodPost, "/documents/upload?async=true", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("没有文件", func(t *testing.T) {
		body, ct := multipartBody(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
		req.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("删除不存在的文件", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/ghost.pdf", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	for _, c := range []struct {
		name string
		err  error
		want int
	}{
		{"正常", nil, http.StatusOK},
		{"数据库不可用", errors.New("db down"), http.StatusServiceUnavailable},
	} {
		t.Run(c.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(fakePinger{c.err}, "memory").Health)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, c.want, w.Code)
		})
	}
}
