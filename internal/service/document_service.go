package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"campus-rag-go/internal/model"
	"campus-rag-go/internal/normalizer"
	"campus-rag-go/internal/pipeline"
	"campus-rag-go/internal/repository"
	"campus-rag-go/pkg/log"
	"campus-rag-go/pkg/storage"
	"campus-rag-go/pkg/tasks"
)

var (
	// ErrAsyncUnavailable 表示未配置对象存储或消息队列，无法异步导入。
	ErrAsyncUnavailable = errors.New("async ingestion is not configured")
	// ErrDocumentNotFound 表示没有该文件名的处理记录。
	ErrDocumentNotFound = errors.New("document not found")
)

// Ingestor 是文档导入流水线，由 *pipeline.Processor 实现。
type Ingestor interface {
	IngestBatch(ctx context.Context, inputs []pipeline.Input) pipeline.BatchResult
	RemoveDocument(ctx context.Context, fileName string) (pipeline.RemovalResult, error)
}

// ObjectStore 保存原始文件，由 *storage.ObjectStore 实现。
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// TaskProducer 投递异步导入任务，由 *kafka.Producer 实现。
type TaskProducer interface {
	ProduceIngestionTask(ctx context.Context, task tasks.IngestionTask) error
}

// QueuedFile 是异步导入时单个文件的受理结果。
type QueuedFile struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"contentHash,omitempty"`
	Queued      bool   `json:"queued"`
	Error       string `json:"error,omitempty"`
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// DocumentService 接口定义了文档管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, files []pipeline.Input) pipeline.BatchResult
	UploadAsync(ctx context.Context, requestedBy string, files []pipeline.Input) ([]QueuedFile, error)
	List(ctx context.Context) ([]model.DocumentRecord, error)
	Delete(ctx context.Context, fileName string) (*pipeline.RemovalResult, error)
	DownloadURL(ctx context.Context, fileName string) (*DownloadInfoDTO, error)
}

type documentService struct {
	ingestor Ingestor
	docRepo  repository.DocumentRepository
	objects  ObjectStore
	producer TaskProducer
	maxBytes int64
}

// NewDocumentService 创建一个新的 DocumentService 实例。objects 或 producer 为 nil 时只支持同步导入。
func NewDocumentService(ingestor Ingestor, docRepo repository.DocumentRepository, objects ObjectStore, producer TaskProducer, maxBytes int64) DocumentService {
	return &documentService{
		ingestor: ingestor,
		docRepo:  docRepo,
		objects:  objects,
		producer: producer,
		maxBytes: maxBytes,
	}
}

// Upload 同步导入一批文件。配置了对象存储时，原始文件会一并保存以便下载。
func (s *documentService) Upload(ctx context.Context, files []pipeline.Input) pipeline.BatchResult {
	run := s.ingestor.IngestBatch(ctx, files)
	if s.objects == nil {
		return run
	}
	for i, r := range run.Results {
		if r.Status != pipeline.StatusSuccess {
			continue
		}
		key := storage.ObjectKey(r.ContentHash, r.Filename)
		if err := s.objects.Put(ctx, key, files[i].Data, contentType(r.Filename)); err != nil {
			log.Warnf("[DocumentService] 保存原始文件失败, file: %s, error: %v", r.Filename, err)
		}
	}
	return run
}

// UploadAsync 把文件存入对象存储并投递导入任务，由后台消费者处理。
func (s *documentService) UploadAsync(ctx context.Context, requestedBy string, files []pipeline.Input) ([]QueuedFile, error) {
	if s.objects == nil || s.producer == nil {
		return nil, ErrAsyncUnavailable
	}
	results := make([]QueuedFile, len(files))
	for i, f := range files {
		results[i] = QueuedFile{Filename: f.FileName}
		if err := normalizer.Validate(f.FileName, int64(len(f.Data)), s.maxBytes); err != nil {
			results[i].Error = err.Error()
			continue
		}
		hash := pipeline.ContentHash(f.Data)
		results[i].ContentHash = hash
		key := storage.ObjectKey(hash, f.FileName)

		if err := s.objects.Put(ctx, key, f.Data, contentType(f.FileName)); err != nil {
			log.Errorf("[DocumentService] 上传文件到对象存储失败, file: %s, error: %v", f.FileName, err)
			results[i].Error = err.Error()
			continue
		}
		task := tasks.IngestionTask{
			ContentHash: hash,
			ObjectKey:   key,
			FileName:    f.FileName,
			SizeBytes:   int64(len(f.Data)),
			RequestedBy: requestedBy,
		}
		if err := s.producer.ProduceIngestionTask(ctx, task); err != nil {
			log.Errorf("[DocumentService] 投递导入任务失败, file: %s, error: %v", f.FileName, err)
			results[i].Error = err.Error()
			continue
		}
		results[i].Queued = true
		log.Infof("[DocumentService] 已投递导入任务, file: %s, hash: %s", f.FileName, hash)
	}
	return results, nil
}

func (s *documentService) List(ctx context.Context) ([]model.DocumentRecord, error) {
	return s.docRepo.List(ctx)
}

// Delete 删除某个文件名的全部版本及其原始文件。
func (s *documentService) Delete(ctx context.Context, fileName string) (*pipeline.RemovalResult, error) {
	versions, err := s.docRepo.FindByFileName(ctx, fileName)
	if err != nil {
		return nil, err
	}
	res, err := s.ingestor.RemoveDocument(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 && res.EventsDeactivated == 0 {
		return nil, ErrDocumentNotFound
	}
	if s.objects != nil {
		for _, v := range versions {
			if err := s.objects.Delete(ctx, storage.ObjectKey(v.ContentHash, v.FileName)); err != nil {
				log.Warnf("[DocumentService] 删除原始文件失败, file: %s, error: %v", v.FileName, err)
			}
		}
	}
	return &res, nil
}

// DownloadURL 为最新版本的原始文件生成一小时有效的下载链接。
func (s *documentService) DownloadURL(ctx context.Context, fileName string) (*DownloadInfoDTO, error) {
	if s.objects == nil {
		return nil, ErrAsyncUnavailable
	}
	versions, err := s.docRepo.FindByFileName(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrDocumentNotFound
	}
	latest := versions[0]
	u, err := s.objects.PresignedURL(ctx, storage.ObjectKey(latest.ContentHash, latest.FileName), time.Hour)
	if err != nil {
		return nil, fmt.Errorf("生成下载链接失败: %w", err)
	}
	return &DownloadInfoDTO{FileName: latest.FileName, DownloadURL: u, FileSize: latest.SizeBytes}, nil
}

func contentType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == ".docx" {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
