// Package tasks 定义了通过 Kafka 传递的异步任务结构。
package tasks

// IngestionTask 表示一次文档导入任务。原始文件已存放在对象存储中，由 ObjectKey 定位。
type IngestionTask struct {
	ContentHash string `json:"content_hash"`
	ObjectKey   string `json:"object_key"`
	FileName    string `json:"file_name"`
	SizeBytes   int64  `json:"size_bytes"`
	RequestedBy string `json:"requested_by,omitempty"`
}
