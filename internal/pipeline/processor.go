// Package pipeline 定义了文档导入的核心流程：提取、清洗、切块、向量化入库以及事件抽取。
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"campus-rag-go/internal/chunker"
	"campus-rag-go/internal/events"
	"campus-rag-go/internal/gateway"
	"campus-rag-go/internal/model"
	"campus-rag-go/internal/normalizer"
	"campus-rag-go/internal/repository"
	"campus-rag-go/pkg/log"
	"campus-rag-go/pkg/tasks"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// VectorGateway 是流水线使用的向量写入能力。
type VectorGateway interface {
	UpsertChunks(ctx context.Context, chunks []model.Chunk) (gateway.UpsertResult, error)
	DeleteDocument(ctx context.Context, contentHash string) (int64, error)
}

// GatewayProvider 在需要时取得向量网关，通常是 gateway.Get 的包装。
type GatewayProvider func(ctx context.Context) (VectorGateway, error)

// SingletonGateway 返回从全局网关单例取值的 GatewayProvider。
func SingletonGateway() GatewayProvider {
	return func(ctx context.Context) (VectorGateway, error) {
		return gateway.Get(ctx)
	}
}

// ObjectReader 读取异步导入时暂存在对象存储中的原始文件。
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// FileStatus 是单个文件的导入结果状态。
type FileStatus string

const (
	StatusSuccess FileStatus = "success"
	StatusSkipped FileStatus = "skipped"
	StatusError   FileStatus = "error"
)

// Input 是一个待导入的文件。
type Input struct {
	FileName string
	Data     []byte
}

// FileResult 记录单个文件的导入结果。
type FileResult struct {
	Filename        string     `json:"filename"`
	Status          FileStatus `json:"status"`
	ContentHash     string     `json:"contentHash,omitempty"`
	Strategy        string     `json:"strategy,omitempty"`
	ChunksProcessed int        `json:"chunksProcessed"`
	VectorsStored   int        `json:"vectorsStored"`
	EventsStored    int        `json:"eventsStored"`
	TotalCharacters int        `json:"totalCharacters"`
	Error           string     `json:"error,omitempty"`
}

// Processor 封装了文档导入的所有依赖和逻辑。
type Processor struct {
	extractor normalizer.Extractor
	chunker   *chunker.Chunker
	events    *events.Extractor
	gateway   GatewayProvider
	eventRepo repository.EventRepository
	docRepo   repository.DocumentRepository
	objects   ObjectReader
	maxBytes  int64
	workers   int
	tracer    trace.Tracer
	now       func() time.Time
}

// Config 汇总 Processor 的可调参数。
type Config struct {
	MaxFileBytes int64
	Workers      int
}

// NewProcessor 创建一个新的 Processor 实例。objects 为 nil 时不支持异步任务。
func NewProcessor(
	extractor normalizer.Extractor,
	ch *chunker.Chunker,
	ev *events.Extractor,
	gw GatewayProvider,
	eventRepo repository.EventRepository,
	docRepo repository.DocumentRepository,
	objects ObjectReader,
	cfg Config,
) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Processor{
		extractor: extractor,
		chunker:   ch,
		events:    ev,
		gateway:   gw,
		eventRepo: eventRepo,
		docRepo:   docRepo,
		objects:   objects,
		maxBytes:  cfg.MaxFileBytes,
		workers:   cfg.Workers,
		tracer:    otel.Tracer("campus-rag-go/pipeline"),
		now:       time.Now,
	}
}

// ContentHash 返回文件内容的 MD5，作为文档版本的幂等键。
func ContentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// IngestDocument 导入单个文件。错误不会以 error 返回，而是写在 FileResult 中。
func (p *Processor) IngestDocument(ctx context.Context, in Input) FileResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.IngestDocument",
		trace.WithAttributes(attribute.String("file.name", in.FileName), attribute.Int("file.size", len(in.Data))))
	defer span.End()

	res := p.ingest(ctx, in)
	span.SetAttributes(
		attribute.String("ingest.status", string(res.Status)),
		attribute.Int("ingest.chunks", res.ChunksProcessed),
		attribute.Int("ingest.vectors", res.VectorsStored),
	)
	if res.Status == StatusError {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

func (p *Processor) ingest(ctx context.Context, in Input) FileResult {
	res := FileResult{Filename: in.FileName}
	fail := func(err error) FileResult {
		log.Errorf("[Processor] 处理文件失败, FileName: %s, Error: %v", in.FileName, err)
		res.Status = StatusError
		res.Error = err.Error()
		return res
	}

	log.Infof("[Processor] 开始处理文件, FileName: %s, 大小: %d字节", in.FileName, len(in.Data))
	if err := normalizer.Validate(in.FileName, int64(len(in.Data)), p.maxBytes); err != nil {
		return fail(err)
	}
	fileType, _ := normalizer.FileType(in.FileName)
	hash := ContentHash(in.Data)
	res.ContentHash = hash

	// 1. 内容寻址的处理记录：相同字节已成功处理则跳过
	record, err := p.docRepo.FindByHash(ctx, hash)
	if err != nil {
		return fail(fmt.Errorf("查询文档记录失败: %w", err))
	}
	if record != nil && record.Status == model.DocumentCompleted {
		log.Infof("[Processor] 文件内容未变化, 跳过处理, FileName: %s, Hash: %s", in.FileName, hash)
		res.Status = StatusSkipped
		res.ChunksProcessed = record.TotalChunks
		res.VectorsStored = record.VectorsStored
		res.EventsStored = record.EventsStored
		return res
	}
	if record == nil {
		record = &model.DocumentRecord{
			ContentHash: hash,
			FileName:    in.FileName,
			FileType:    fileType,
			SizeBytes:   int64(len(in.Data)),
			Status:      model.DocumentProcessing,
		}
		if err := p.docRepo.Create(ctx, record); err != nil {
			// 相同内容正在被并发处理
			if again, findErr := p.docRepo.FindByHash(ctx, hash); findErr == nil && again != nil {
				log.Infof("[Processor] 相同内容正在被处理, 跳过, FileName: %s", in.FileName)
				res.Status = StatusSkipped
				return res
			}
			return fail(fmt.Errorf("创建文档记录失败: %w", err))
		}
	} else {
		record.FileName = in.FileName
		record.Status = model.DocumentProcessing
		record.ErrorMessage = ""
	}
	markFailed := func(err error, status model.DocumentStatus) {
		record.Status = status
		record.ErrorMessage = err.Error()
		if updErr := p.docRepo.Update(ctx, record); updErr != nil {
			log.Errorf("[Processor] 更新文档记录失败, Hash: %s, Error: %v", hash, updErr)
		}
	}

	// 2. 提取并清洗文本
	text, err := normalizer.Prepare(ctx, p.extractor, in.FileName, in.Data, p.maxBytes)
	if err != nil {
		markFailed(err, model.DocumentFailed)
		return fail(err)
	}
	res.TotalCharacters = utf8.RuneCountInString(text)
	log.Infof("[Processor] 文本提取成功, 内容长度: %d 字符", res.TotalCharacters)

	// 3. 自适应切块
	chunks, strategy := p.chunker.Chunk(text, chunker.Meta{
		Filename:        in.FileName,
		FileType:        fileType,
		UploadTimestamp: p.now().UTC().Format(time.RFC3339),
		ContentHash:     hash,
	})
	res.Strategy = strategy
	res.ChunksProcessed = len(chunks)
	record.TotalChunks = len(chunks)
	log.Infof("[Processor] 文本分块完成, 策略: %s, 共生成 %d 个分块", strategy, len(chunks))
	if len(chunks) == 0 {
		err := errors.New("未生成任何文本分块")
		markFailed(err, model.DocumentFailed)
		return fail(err)
	}

	// 4. 向量化并写入索引
	gw, err := p.gateway(ctx)
	if err != nil {
		markFailed(err, model.DocumentFailed)
		return fail(err)
	}
	upsert, err := gw.UpsertChunks(ctx, chunks)
	res.VectorsStored = upsert.Stored
	record.VectorsStored = upsert.Stored
	if err != nil {
		status := model.DocumentFailed
		if upsert.Partial {
			status = model.DocumentPartial
		}
		markFailed(err, status)
		return fail(fmt.Errorf("向量写入失败 (%d/%d): %w", upsert.Stored, upsert.Total, err))
	}

	// 5. 同名旧版本：删除旧向量，停用旧事件
	p.replacePreviousVersions(ctx, gw, in.FileName, hash)

	// 6. 事件抽取，失败只记录日志
	res.EventsStored = p.storeEvents(ctx, text, in.FileName)
	record.EventsStored = res.EventsStored

	record.Status = model.DocumentCompleted
	if err := p.docRepo.Update(ctx, record); err != nil {
		log.Errorf("[Processor] 更新文档记录失败, Hash: %s, Error: %v", hash, err)
	}
	res.Status = StatusSuccess
	log.Infof("[Processor] 文件处理完成, FileName: %s, 向量: %d, 事件: %d", in.FileName, res.VectorsStored, res.EventsStored)
	return res
}

func (p *Processor) replacePreviousVersions(ctx context.Context, gw VectorGateway, fileName, hash string) {
	versions, err := p.docRepo.FindByFileName(ctx, fileName)
	if err != nil {
		log.Warnf("[Processor] 查询旧版本失败, FileName: %s, Error: %v", fileName, err)
		return
	}
	var stale []model.DocumentRecord
	for _, v := range versions {
		if v.ContentHash != hash {
			stale = append(stale, v)
		}
	}
	if len(stale) == 0 {
		return
	}

	if _, err := p.eventRepo.DeactivateBySource(ctx, fileName); err != nil {
		log.Warnf("[Processor] 停用旧事件失败, FileName: %s, Error: %v", fileName, err)
	}
	for _, v := range stale {
		deleted, err := gw.DeleteDocument(ctx, v.ContentHash)
		if err != nil {
			log.Warnf("[Processor] 删除旧版本向量失败, Hash: %s, Error: %v", v.ContentHash, err)
			continue
		}
		if err := p.docRepo.Delete(ctx, v.ID); err != nil {
			log.Warnf("[Processor] 删除旧版本记录失败, Hash: %s, Error: %v", v.ContentHash, err)
		}
		log.Infof("[Processor] 已替换旧版本, FileName: %s, 旧Hash: %s, 删除向量: %d", fileName, v.ContentHash, deleted)
	}
}

func (p *Processor) storeEvents(ctx context.Context, text, fileName string) int {
	extracted := p.events.Extract(text, fileName)
	if len(extracted) == 0 {
		return 0
	}
	stored, err := p.eventRepo.StoreEvents(ctx, extracted)
	if err != nil {
		log.Warnf("[Processor] 事件写入中断, FileName: %s, Error: %v", fileName, err)
	}
	return stored.Stored
}

// Process 处理一个来自 Kafka 的异步导入任务。跳过视为成功，只有错误会触发重试。
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) error {
	if p.objects == nil {
		return errors.New("对象存储未配置")
	}
	data, err := p.objects.Get(ctx, task.ObjectKey)
	if err != nil {
		return fmt.Errorf("从对象存储读取文件失败: %w", err)
	}
	res := p.IngestDocument(ctx, Input{FileName: task.FileName, Data: data})
	if res.Status == StatusError {
		return errors.New(res.Error)
	}
	return nil
}
