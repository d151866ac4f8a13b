package app

import (
	"context"
	"path/filepath"
	"testing"

	"campus-rag-go/internal/config"
	"campus-rag-go/internal/gateway"
	"campus-rag-go/internal/pipeline"
	"campus-rag-go/pkg/extractor"
	"campus-rag-go/pkg/kafka"
	"campus-rag-go/pkg/tika"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "events.db")
	cfg.Database.Redis.Addr = ""
	cfg.Vector.Backend = "memory"
	cfg.MinIO.Endpoint = ""
	cfg.Kafka.Brokers = ""
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Objects)

	gw, err := gateway.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, gw)

	_, err = a.NewConsumer()
	assert.ErrorIs(t, err, kafka.ErrNotConfigured)

	res := a.Processor.IngestDocument(ctx, pipeline.Input{FileName: "notes.xlsx", Data: []byte("x")})
	assert.Equal(t, pipeline.StatusError, res.Status)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vector.Backend = "faiss"
	a, err := New(context.Background(), cfg)
	require.NoError(t, err, "gateway construction is deferred")
	defer a.Close()

	_, err = gateway.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrServiceUnavailable)
}

func TestNewExtractor(t *testing.T) {
	cfg := config.Defaults()
	cfg.Extraction.Provider = "tika"
	cfg.Tika.ServerURL = "http://localhost:9998"
	assert.IsType(t, &tika.Client{}, NewExtractor(cfg))

	cfg.Extraction.Provider = "native"
	assert.IsType(t, &extractor.Native{}, NewExtractor(cfg))
}
