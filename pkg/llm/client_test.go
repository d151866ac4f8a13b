package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-rag-go/internal/config"
)

type recordingWriter struct {
	parts []string
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return fmt.Errorf("unexpected message type %d", messageType)
	}
	w.parts = append(w.parts, string(data))
	return nil
}

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "gpt-4o-mini",
		Generation: config.LLMGenerationConfig{Temperature: 0.6, MaxTokens: 1500},
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		assert.EqualValues(t, 200, req["max_tokens"])
		assert.Len(t, req["messages"], 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Room 305."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":40,"completion_tokens":3,"total_tokens":43}}`)
	}))
	defer srv.Close()

	maxTokens := 200
	c := NewClient(testConfig(srv.URL))
	out, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "answer from context"},
		{Role: "user", Content: "where is TTS 4821?"},
	}, &GenerationParams{MaxTokens: &maxTokens})
	require.NoError(t, err)
	assert.Equal(t, "Room 305.", out.Content)
	assert.Equal(t, 43, out.Usage.TotalTokens)
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	assert.Error(t, err)
}

func TestStreamChatMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Exams ", "start ", "Monday."} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"s1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	w := &recordingWriter{}
	err := NewClient(testConfig(srv.URL)).StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "when?"}}, nil, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"Exams ", "start ", "Monday."}, w.parts)
}
