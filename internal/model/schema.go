// Package model 定义了与数据库表对应的 Go 结构体以及管道中流转的数据类型。
package model

import (
	"regexp"
	"strings"
	"time"
)

// SchemaRecord 对应 category_schemas 表：某个目标库中一个类别的必需列。
// Category 始终以小写存储，查询时同样转小写，实现大小写无关的查找。
type SchemaRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DBName    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_db_category" json:"db_name"`
	Category  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_db_category" json:"category"`
	Columns   []string  `gorm:"type:text;serializer:json;not null" json:"columns"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SchemaRecord) TableName() string {
	return "category_schemas"
}

// NormalizeCategory 统一类别名的大小写与空白。
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

var categoryPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidCategory 类别名会成为目录名与集合名，只允许小写字母、数字、下划线和连字符。
func ValidCategory(category string) bool {
	return len(category) <= 64 && categoryPattern.MatchString(category)
}

// Unclassified 是分类器在没有任何类别得分时返回的结果。
const Unclassified = "unclassified"
