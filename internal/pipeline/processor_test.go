package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"campus-rag-go/internal/chunker"
	"campus-rag-go/internal/config"
	"campus-rag-go/internal/events"
	"campus-rag-go/internal/gateway"
	"campus-rag-go/internal/model"
	"campus-rag-go/internal/repository"
	"campus-rag-go/pkg/extractor"
	"campus-rag-go/pkg/memstore"
	"campus-rag-go/pkg/tasks"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const calendarV1 = `Academic Calendar 2024

The mid-semester examination will be conducted on 15/03/2024 in Hall A.

Last date for fee payment is 20/03/2024 for all programmes.`

const calendarV2 = `Academic Calendar 2024 (revised)

The mid-semester examination will be conducted on 18/03/2024 in Hall A.`

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t))}
	}
	return out, nil
}

type failingEvents struct {
	repository.EventRepository
}

func (failingEvents) StoreEvents(context.Context, []model.Event) (model.StoreResult, error) {
	return model.StoreResult{}, errors.New("database is locked")
}

type fakeObjects map[string][]byte

func (f fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fixture struct {
	proc    *Processor
	store   *memstore.Store
	events  repository.EventRepository
	docs    repository.DocumentRepository
	objects fakeObjects
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Event{}, &model.DocumentRecord{}))

	now := func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	f := &fixture{
		store:   memstore.New(),
		events:  repository.NewEventRepositoryWithClock(db, now),
		docs:    repository.NewDocumentRepository(db),
		objects: fakeObjects{},
	}
	gw := gateway.New(constEmbedder{}, f.store, config.BreakerConfig{MinRequests: 100, FailureRatio: 1}, gateway.DefaultBatchSize)
	f.proc = NewProcessor(
		extractor.NewNative(),
		chunker.New(),
		events.NewExtractor(events.WithClock(now)),
		func(context.Context) (VectorGateway, error) { return gw, nil },
		f.events,
		f.docs,
		f.objects,
		Config{Workers: 2},
	)
	return f
}

func TestIngestDocument_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV1)})
	require.Equal(t, StatusSuccess, res.Status, res.Error)
	assert.Equal(t, ContentHash([]byte(calendarV1)), res.ContentHash)
	assert.Equal(t, "recursive", res.Strategy)
	assert.Equal(t, 1, res.ChunksProcessed)
	assert.Equal(t, 1, res.VectorsStored)
	assert.Equal(t, 2, res.EventsStored)
	assert.Positive(t, res.TotalCharacters)
	assert.Equal(t, 1, f.store.Len())

	record, err := f.docs.FindByHash(ctx, res.ContentHash)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.DocumentCompleted, record.Status)
	assert.Equal(t, 2, record.EventsStored)
}

func TestIngestDocument_SkipsIdenticalContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV1)})
	require.Equal(t, StatusSuccess, first.Status)

	second := f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV1)})
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, first.VectorsStored, second.VectorsStored)

	evs, err := f.events.QueryByFilters(ctx, model.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestIngestDocument_ReplacesPreviousVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1 := f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV1)})
	require.Equal(t, StatusSuccess, v1.Status)
	v2 := f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV2)})
	require.Equal(t, StatusSuccess, v2.Status)

	assert.Equal(t, 1, f.store.Len())
	old, err := f.docs.FindByHash(ctx, v1.ContentHash)
	require.NoError(t, err)
	assert.Nil(t, old)

	evs, err := f.events.QueryByFilters(ctx, model.EventFilter{SourceFile: "calendar.txt"})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "2024-03-18", evs[0].Date)
}

func TestIngestDocument_EventFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	f.proc.eventRepo = failingEvents{f.events}

	res := f.proc.IngestDocument(context.Background(), Input{FileName: "calendar.txt", Data: []byte(calendarV1)})
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.VectorsStored)
	assert.Zero(t, res.EventsStored)
}

func TestIngestDocument_GatewayUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	working := f.proc.gateway
	f.proc.gateway = func(context.Context) (VectorGateway, error) {
		return nil, gateway.ErrServiceUnavailable
	}

	res := f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV1)})
	assert.Equal(t, StatusError, res.Status)
	record, err := f.docs.FindByHash(ctx, res.ContentHash)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, model.DocumentFailed, record.Status)
	assert.NotEmpty(t, record.ErrorMessage)

	f.proc.gateway = working
	retry := f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV1)})
	assert.Equal(t, StatusSuccess, retry.Status)
}

func TestIngestBatch(t *testing.T) {
	f := newFixture(t)
	inputs := []Input{
		{FileName: "calendar.txt", Data: []byte(calendarV1)},
		{FileName: "timetable.xlsx", Data: []byte("cells")},
		{FileName: "empty.txt", Data: []byte("   \n\n ")},
		{FileName: "notice.txt", Data: []byte("Library hours are extended during the examination weeks.")},
	}

	run := f.proc.IngestBatch(context.Background(), inputs)
	assert.NotEmpty(t, run.RunID)
	require.Len(t, run.Results, 4)
	assert.Equal(t, "calendar.txt", run.Results[0].Filename)
	assert.Equal(t, StatusSuccess, run.Results[0].Status)
	assert.Equal(t, StatusError, run.Results[1].Status)
	assert.Contains(t, run.Results[1].Error, "unsupported file type")
	assert.Equal(t, StatusError, run.Results[2].Status)
	assert.Equal(t, StatusSuccess, run.Results[3].Status)
	assert.Equal(t, BatchSummary{Total: 4, Succeeded: 2, Skipped: 0, Failed: 2}, run.Summary)
}

func TestProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.objects["uploads/x/calendar.txt"] = []byte(calendarV1)

	require.NoError(t, f.proc.Process(ctx, tasks.IngestionTask{ObjectKey: "uploads/x/calendar.txt", FileName: "calendar.txt"}))
	assert.Equal(t, 1, f.store.Len())

	err := f.proc.Process(ctx, tasks.IngestionTask{ObjectKey: "missing", FileName: "calendar.txt"})
	assert.Error(t, err)

	f.objects["uploads/y/bad.txt"] = []byte("  ")
	err = f.proc.Process(ctx, tasks.IngestionTask{ObjectKey: "uploads/y/bad.txt", FileName: "bad.txt"})
	assert.Error(t, err)
}

func TestRemoveDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, StatusSuccess, f.proc.IngestDocument(ctx, Input{FileName: "calendar.txt", Data: []byte(calendarV1)}).Status)

	res, err := f.proc.RemoveDocument(ctx, "calendar.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Versions)
	assert.Equal(t, int64(1), res.VectorsDeleted)
	assert.Equal(t, int64(2), res.EventsDeactivated)
	assert.Zero(t, f.store.Len())

	docs, err := f.docs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
