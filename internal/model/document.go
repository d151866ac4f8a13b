package model

import "time"

// DocumentStatus 是文档导入记录的状态。
type DocumentStatus int

const (
	DocumentProcessing DocumentStatus = 0
	DocumentCompleted  DocumentStatus = 1
	DocumentFailed     DocumentStatus = 2
	DocumentPartial    DocumentStatus = 3
)

// DocumentRecord 定义了 document_records 表的 ORM 模型。
// 以文件内容的 MD5 作为幂等键，记录每个已导入文档的处理结果。
type DocumentRecord struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentHash   string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"contentHash"`
	FileName      string         `gorm:"type:varchar(255);not null;index" json:"fileName"`
	FileType      string         `gorm:"type:varchar(16);not null" json:"fileType"`
	SizeBytes     int64          `gorm:"not null" json:"sizeBytes"`
	Status        DocumentStatus `gorm:"type:tinyint;not null;default:0" json:"status"`
	TotalChunks   int            `gorm:"not null;default:0" json:"totalChunks"`
	VectorsStored int            `gorm:"not null;default:0" json:"vectorsStored"`
	EventsStored  int            `gorm:"not null;default:0" json:"eventsStored"`
	ErrorMessage  string         `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentRecord) TableName() string {
	return "document_records"
}
