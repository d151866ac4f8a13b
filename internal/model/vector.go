package model

// VectorRecord 是写入向量索引的一条记录。
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata VectorMetadata
}

// VectorMetadata 是与向量一起保存、查询时原样返回的元数据。
type VectorMetadata struct {
	ChunkMetadata
	ChunkID       int      `json:"chunkId"`
	Text          string   `json:"text"`
	DataType      DataType `json:"dataType,omitempty"`
	StructuralKey string   `json:"structuralKey,omitempty"`
}

// VectorMatch 是向量索引返回的一条相似度结果，分数越高越相关。
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata VectorMetadata
}

// RetrievalMatch 是单次查询中进入上下文的切块来源。
type RetrievalMatch struct {
	ChunkRef string  `json:"chunkRef"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
	ChunkID  int     `json:"chunkId"`
}
