package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"campus-rag-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ExtractRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.4", string(body))
		_, _ = w.Write([]byte("Semester calendar"))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL})
	text, err := c.ExtractRawText(context.Background(), []byte("%PDF-1.4"), ".pdf")
	require.NoError(t, err)
	assert.Equal(t, "Semester calendar", text)
}

func TestClient_ExtractRawTextServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("cannot parse"))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL})
	_, err := c.ExtractRawText(context.Background(), []byte("junk"), ".docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}
