package model

// RowVectorDocument 定义了存储在 Elasticsearch 中的行向量文档。
// 同一个源文件的所有行共享 FileName，重新索引时按 FileName 整体替换。
type RowVectorDocument struct {
	VectorID     string    `json:"vector_id"` // FileName + RowID
	FileName     string    `json:"file_name"`
	RowID        int       `json:"row_id"`
	Text         string    `json:"text"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}
