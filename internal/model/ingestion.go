package model

import "fmt"

// IngestionRecord 是单个文件在管道中的瞬时状态，只在请求生命周期内存在。
type IngestionRecord struct {
	FilePath   string   `json:"file_path"`
	FileName   string   `json:"file_name"`
	Database   string   `json:"database"`
	Columns    []string `json:"columns"`
	Category   string   `json:"category"`
	Valid      bool     `json:"valid"`
	PrimaryKey string   `json:"primary_key"`
}

// IngestionLog 对应 ingestion_logs 表，只追加，不修改、不删除。
type IngestionLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName  string    `gorm:"type:varchar(255);not null;index" json:"file_name"`
	Category  string    `gorm:"type:varchar(64);not null" json:"category"`
	Valid     bool      `gorm:"not null" json:"valid"`
	Strategy  string    `gorm:"type:varchar(32)" json:"strategy"`
	CreatedAt LocalTime `gorm:"type:datetime;not null" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (IngestionLog) TableName() string {
	return "ingestion_logs"
}

// Line 渲染为人类可读的一行日志。
func (l IngestionLog) Line() string {
	return fmt.Sprintf("%s | Category: %s | Valid: %t | Time: %s", l.FileName, l.Category, l.Valid, l.CreatedAt)
}

// PipelineResult 是上传接口返回的完整处理结果。
type PipelineResult struct {
	FileName        string   `json:"file_name"`
	Database        string   `json:"database"`
	Category        string   `json:"category"`
	Valid           bool     `json:"valid"`
	Strategy        string   `json:"strategy"`
	PrimaryKey      string   `json:"primary_key,omitempty"`
	Inserted        int      `json:"inserted"`
	Skipped         int      `json:"skipped"`
	OrganizedPath   string   `json:"organized_path,omitempty"`
	TransformedPath string   `json:"transformed_path,omitempty"`
	ReportPath      string   `json:"report_path,omitempty"`
	ReportObject    string   `json:"report_object,omitempty"`
	IndexedRows     int      `json:"indexed_rows"`
	Logs            []string `json:"logs"`
}
