package repository

import (
	"context"
	"errors"

	"datapilot-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexedFileRepository 定义了对 indexed_files 表的数据操作接口。
type IndexedFileRepository interface {
	Upsert(ctx context.Context, file *model.IndexedFile) error
	// FindByFileName 未找到时返回 nil, nil。
	FindByFileName(ctx context.Context, fileName string) (*model.IndexedFile, error)
	List(ctx context.Context) ([]model.IndexedFile, error)
}

type indexedFileRepository struct {
	db *gorm.DB
}

// NewIndexedFileRepository 创建一个新的 IndexedFileRepository 实例。
func NewIndexedFileRepository(db *gorm.DB) IndexedFileRepository {
	return &indexedFileRepository{db: db}
}

// Upsert 重新索引时整体覆盖旧的登记信息。
func (r *indexedFileRepository) Upsert(ctx context.Context, file *model.IndexedFile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "row_count", "dimensions", "model_version", "updated_at"}),
	}).Create(file).Error
}

func (r *indexedFileRepository) FindByFileName(ctx context.Context, fileName string) (*model.IndexedFile, error) {
	var file model.IndexedFile
	err := r.db.WithContext(ctx).Where("file_name = ?", fileName).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *indexedFileRepository) List(ctx context.Context) ([]model.IndexedFile, error) {
	var files []model.IndexedFile
	err := r.db.WithContext(ctx).Order("file_name asc").Find(&files).Error
	return files, err
}
