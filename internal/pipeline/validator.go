package pipeline

import (
	"context"
	"fmt"
)

// Validator 检查文件是否包含类别要求的全部列（逐字、区分大小写）。
type Validator struct {
	schemas SchemaSource
}

// NewValidator 创建校验器。
func NewValidator(schemas SchemaSource) *Validator {
	return &Validator{schemas: schemas}
}

// RequiredColumns 返回类别的必需列，未登记时返回 nil。
func (v *Validator) RequiredColumns(ctx context.Context, database, category string) ([]string, error) {
	rec, err := v.schemas.Find(ctx, database, category)
	if err != nil {
		return nil, fmt.Errorf("load schema %s/%s: %w", database, category, err)
	}
	if rec == nil {
		return nil, nil
	}
	return rec.Columns, nil
}

// Validate 未登记 schema 的类别返回 false 而不是错误；额外的列不扣分。
func (v *Validator) Validate(ctx context.Context, database, category string, columns []string) (bool, error) {
	required, err := v.RequiredColumns(ctx, database, category)
	if err != nil {
		return false, err
	}
	if len(required) == 0 {
		return false, nil
	}
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[c] = struct{}{}
	}
	for _, req := range required {
		if _, ok := have[req]; !ok {
			return false, nil
		}
	}
	return true, nil
}
