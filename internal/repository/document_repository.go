package repository

import (
	"context"
	"errors"

	"campus-rag-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 定义了对 document_records 表的数据操作接口。
type DocumentRepository interface {
	Create(ctx context.Context, record *model.DocumentRecord) error
	Update(ctx context.Context, record *model.DocumentRecord) error
	FindByHash(ctx context.Context, contentHash string) (*model.DocumentRecord, error)
	FindByFileName(ctx context.Context, fileName string) ([]model.DocumentRecord, error)
	List(ctx context.Context) ([]model.DocumentRecord, error)
	Delete(ctx context.Context, id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, record *model.DocumentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Update 保存记录的全部字段。
func (r *documentRepository) Update(ctx context.Context, record *model.DocumentRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// FindByHash 根据内容哈希查找记录，不存在时返回 nil, nil。
func (r *documentRepository) FindByHash(ctx context.Context, contentHash string) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	err := r.db.WithContext(ctx).Where("content_hash = ?", contentHash).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByFileName 返回同名文件的所有版本，最新的在前。
func (r *documentRepository) FindByFileName(ctx context.Context, fileName string) ([]model.DocumentRecord, error) {
	var records []model.DocumentRecord
	err := r.db.WithContext(ctx).Where("file_name = ?", fileName).
		Order("created_at DESC").Order("id DESC").
		Find(&records).Error
	return records, err
}

func (r *documentRepository) List(ctx context.Context) ([]model.DocumentRecord, error) {
	var records []model.DocumentRecord
	err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&records).Error
	return records, err
}

func (r *documentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.DocumentRecord{}, id).Error
}
