package repository

import (
	"context"
	"time"

	"datapilot-go/internal/model"

	"gorm.io/gorm"
)

// IngestionLogRepository 只提供追加与按到达顺序读取两种操作。
type IngestionLogRepository interface {
	Append(ctx context.Context, entry *model.IngestionLog) error
	List(ctx context.Context) ([]model.IngestionLog, error)
}

type ingestionLogRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewIngestionLogRepository 创建一个新的 IngestionLogRepository 实例。
func NewIngestionLogRepository(db *gorm.DB) IngestionLogRepository {
	return &ingestionLogRepository{db: db, now: time.Now}
}

func (r *ingestionLogRepository) Append(ctx context.Context, entry *model.IngestionLog) error {
	entry.ID = 0
	if time.Time(entry.CreatedAt).IsZero() {
		entry.CreatedAt = model.LocalTime(r.now())
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// List 按自增 ID 排序，即到达顺序。
func (r *ingestionLogRepository) List(ctx context.Context) ([]model.IngestionLog, error) {
	var entries []model.IngestionLog
	err := r.db.WithContext(ctx).Order("id asc").Find(&entries).Error
	return entries, err
}
