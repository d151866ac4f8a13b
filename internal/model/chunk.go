// Package model 定义了检索管道中共享的数据结构。
package model

// DataType 标记结构化切块策略产出的记录类型。
type DataType string

const (
	DataTypeGeneric       DataType = "generic"
	DataTypeSchoolInfo    DataType = "school_info"
	DataTypeDeanInfo      DataType = "dean_info"
	DataTypeAssocDeanInfo DataType = "assoc_dean_info"
	DataTypeFacultyMember DataType = "faculty_member"
	DataTypeRoomInfo      DataType = "room_info"
	DataTypeMentorMentee  DataType = "mentor_mentee"
)

// Chunk 是一个可独立检索的文本单元。
// ID 在单个文档内唯一，Length 等于去除首尾空白后 Text 的字符数。
type Chunk struct {
	ID            int           `json:"id"`
	Text          string        `json:"text"`
	Length        int           `json:"length"`
	DataType      DataType      `json:"dataType,omitempty"`
	StructuralKey string        `json:"structuralKey,omitempty"`
	Metadata      ChunkMetadata `json:"metadata"`
}

// ChunkMetadata 随向量一同持久化的切块元数据。
type ChunkMetadata struct {
	Filename        string            `json:"filename"`
	FileType        string            `json:"fileType"`
	UploadTimestamp string            `json:"uploadTimestamp"`
	ChunkIndex      int               `json:"chunkIndex"`
	TotalChunks     int               `json:"totalChunks"`
	ContentHash     string            `json:"contentHash,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}
