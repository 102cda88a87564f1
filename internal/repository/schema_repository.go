// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"datapilot-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SchemaRepository 定义了类别 schema 的持久化操作，按 (db_name, category) 唯一。
type SchemaRepository interface {
	Save(ctx context.Context, record *model.SchemaRecord) error
	// Find 未找到时返回 nil, nil。
	Find(ctx context.Context, dbName, category string) (*model.SchemaRecord, error)
	ListByDB(ctx context.Context, dbName string) ([]model.SchemaRecord, error)
	ListAll(ctx context.Context) ([]model.SchemaRecord, error)
	Delete(ctx context.Context, dbName, category string) (bool, error)
}

type schemaRepository struct {
	db *gorm.DB
}

// NewSchemaRepository 创建一个新的 SchemaRepository 实例。
func NewSchemaRepository(db *gorm.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

// Save 新建或整体替换一个类别的必需列。
func (r *schemaRepository) Save(ctx context.Context, record *model.SchemaRecord) error {
	record.Category = model.NormalizeCategory(record.Category)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "db_name"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"columns", "updated_at"}),
	}).Create(record).Error
}

func (r *schemaRepository) Find(ctx context.Context, dbName, category string) (*model.SchemaRecord, error) {
	var record model.SchemaRecord
	err := r.db.WithContext(ctx).
		Where("db_name = ? AND category = ?", dbName, model.NormalizeCategory(category)).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByDB 按类别名升序返回，分类器依赖这个顺序做确定性的平局处理。
func (r *schemaRepository) ListByDB(ctx context.Context, dbName string) ([]model.SchemaRecord, error) {
	var records []model.SchemaRecord
	err := r.db.WithContext(ctx).Where("db_name = ?", dbName).Order("category asc").Find(&records).Error
	return records, err
}

func (r *schemaRepository) ListAll(ctx context.Context) ([]model.SchemaRecord, error) {
	var records []model.SchemaRecord
	err := r.db.WithContext(ctx).Order("db_name asc, category asc").Find(&records).Error
	return records, err
}

func (r *schemaRepository) Delete(ctx context.Context, dbName, category string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("db_name = ? AND category = ?", dbName, model.NormalizeCategory(category)).
		Delete(&model.SchemaRecord{})
	return res.RowsAffected > 0, res.Error
}
