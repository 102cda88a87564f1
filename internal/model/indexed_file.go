package model

import "time"

// IndexedFile 记录一个已建立向量索引的源文件。
type IndexedFile struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName     string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"file_name"`
	Category     string    `gorm:"type:varchar(64)" json:"category"`
	Rows         int       `gorm:"column:row_count;not null" json:"rows"`
	Dimensions   int       `gorm:"not null" json:"dimensions"`
	ModelVersion string    `gorm:"type:varchar(100)" json:"model_version"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (IndexedFile) TableName() string {
	return "indexed_files"
}
