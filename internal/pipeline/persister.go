package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/log"
)

// DocumentStore 是 Persister 所需的文档存储能力，由 repository.CollectionRepository 实现。
type DocumentStore interface {
	FindByKey(ctx context.Context, database, collection, key string, value any) (model.Row, bool, error)
	Insert(ctx context.Context, database, collection string, columns []string, row model.Row) error
	ReplaceByKey(ctx context.Context, database, collection, key string, value any, columns []string, row model.Row) error
}

// Persister 以主键为依据做幂等 upsert：新行插入，内容相同跳过，内容不同整行替换。
type Persister struct {
	store DocumentStore
}

// NewPersister 创建 Persister。
func NewPersister(store DocumentStore) *Persister {
	return &Persister{store: store}
}

// Persist 返回 (inserted, skipped)。替换计入 inserted。
// 任一存储错误都会中止整批并返回 0, 0，已完成的写入不回滚。
func (p *Persister) Persist(ctx context.Context, database, category, key string, ds *model.Dataset) (int, int, error) {
	inserted, skipped := 0, 0
	for i, row := range ds.Rows {
		value, keyed := row[key]
		if !keyed || value == nil {
			if err := p.store.Insert(ctx, database, category, ds.Columns, row); err != nil {
				return 0, 0, fmt.Errorf("row %d: %w", i, err)
			}
			inserted++
			continue
		}

		existing, found, err := p.store.FindByKey(ctx, database, category, key, value)
		if err != nil {
			return 0, 0, fmt.Errorf("row %d: %w", i, err)
		}
		if found && RowsEqual(existing, row) {
			skipped++
			continue
		}
		if err := p.store.ReplaceByKey(ctx, database, category, key, value, ds.Columns, row); err != nil {
			return 0, 0, fmt.Errorf("row %d: %w", i, err)
		}
		inserted++
	}
	log.Infof("[Persister] %s.%s 主键 %s: inserted=%d skipped=%d", database, category, key, inserted, skipped)
	return inserted, skipped, nil
}

// RowsEqual 逐字段比较两行；数值统一按 float64 比较，时间按 UTC 比较。
func RowsEqual(a, b model.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(normalizeForCompare(av), normalizeForCompare(bv)) {
			return false
		}
	}
	return true
}

func normalizeForCompare(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}
