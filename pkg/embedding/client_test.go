package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-rag-go/internal/config"
)

func newTestServer(t *testing.T, handler func(req map[string]interface{}) interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	srv := newTestServer(t, func(req map[string]interface{}) interface{} {
		assert.Equal(t, "text-embedding-3-large", req["model"])
		assert.Len(t, req["input"], 2)
		return map[string]interface{}{
			"object": "list",
			"model":  "text-embedding-3-large",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		}
	})

	c := NewClient(config.EmbeddingConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "text-embedding-3-large"})
	vectors, err := c.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestEmbed_MissingVector(t *testing.T) {
	srv := newTestServer(t, func(map[string]interface{}) interface{} {
		return map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float32{1}},
			},
		}
	})

	c := NewClient(config.EmbeddingConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestEmbed_Empty(t *testing.T) {
	c := NewClient(config.EmbeddingConfig{APIKey: "test-key", BaseURL: "http://127.0.0.1:0", Model: "m"})
	vectors, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestNewCachedClient_NilRedis(t *testing.T) {
	inner := NewClient(config.EmbeddingConfig{APIKey: "k", Model: "m"})
	assert.Same(t, inner, NewCachedClient(inner, nil, "m", 0))
}
