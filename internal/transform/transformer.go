package transform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/log"
)

var (
	// ErrMissingColumns 派生之后仍缺少期望的输出列。
	ErrMissingColumns = errors.New("missing required columns")
	// ErrRowShape 输出行的字段数与列头不一致。
	ErrRowShape = errors.New("row shape mismatch")
)

const unknownText = "Unknown"

// Transformer 按类别规则清洗数据集。每一步都作用于整个数据集，不会中途放弃。
type Transformer struct {
	suggester FeatureSuggester
	now       func() time.Time
}

// NewTransformer suggester 可以为 nil，此时推断出的规则不包含模型建议的派生列。
func NewTransformer(suggester FeatureSuggester) *Transformer {
	return &Transformer{suggester: suggester, now: time.Now}
}

// Transform 返回只包含期望列（按期望顺序）的新数据集，输入不会被修改。
// required 是类别 schema 的必需列，仅用于推断非内置类别的规则。
func (t *Transformer) Transform(ctx context.Context, ds *model.Dataset, category string, required []string) (*model.Dataset, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	profile := t.ProfileFor(ctx, ds, category, required)
	out := ds.Clone()

	fillMissing(out)
	coerce(out, profile)
	t.derive(out, profile.Features)
	removed := dedup(out)

	var missing []string
	for _, c := range profile.Expected {
		if !out.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		log.Warnf("[Transformer] 类别 %s 缺少输出列: %v", category, missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	projected := project(out, profile.Expected)
	if err := checkShape(projected); err != nil {
		return nil, err
	}
	log.Infof("[Transformer] 类别 %s 清洗完成: %d 行 (去重 %d), %d 列", category, len(projected.Rows), removed, len(projected.Columns))
	return projected, nil
}

// ProfileFor 内置类别直接使用内置规则，其他类别按数据推断，并可接受一个模型建议的派生列。
func (t *Transformer) ProfileFor(ctx context.Context, ds *model.Dataset, category string, required []string) Profile {
	if p, ok := BuiltinProfile(category); ok {
		return p
	}
	p := inferProfile(ds, required)
	if t.suggester == nil || len(p.DateColumns) == 0 {
		return p
	}
	f, err := t.suggester.SuggestFeature(ctx, category, ds.Columns, p.DateColumns)
	if err != nil {
		log.Warnf("[Transformer] 派生列建议失败，忽略: %v", err)
		return p
	}
	if !acceptFeature(f, ds, p) {
		log.Warnf("[Transformer] 派生列建议不完整，忽略: %+v", f)
		return p
	}
	p.Features = append(p.Features, f)
	p.Expected = append(p.Expected, f.Name)
	return p
}

// acceptFeature 只接受完整的建议：已知的计算方式、存在的日期源列、不冲突的新列名。
func acceptFeature(f Feature, ds *model.Dataset, p Profile) bool {
	if f.Name == "" || !f.Kind.valid() {
		return false
	}
	if ds.HasColumn(f.Name) || contains(p.Expected, f.Name) {
		return false
	}
	return contains(p.DateColumns, f.Source)
}

// fillMissing 数值列用均值补齐，其他列用 "Unknown"。
func fillMissing(ds *model.Dataset) {
	for _, c := range ds.Columns {
		values := ds.Values(c)
		hasNil := false
		for _, v := range values {
			if v == nil {
				hasNil = true
				break
			}
		}
		if !hasNil {
			continue
		}
		var fill any = unknownText
		if allNumeric(values) {
			sum, n := 0.0, 0
			for _, v := range values {
				if f, ok := asFloat(v); ok {
					sum += f
					n++
				}
			}
			fill = sum / float64(n)
		}
		for _, row := range ds.Rows {
			if row[c] == nil {
				row[c] = fill
			}
		}
	}
}

// coerce 转换失败的值置为 nil，不报错。
func coerce(ds *model.Dataset, p Profile) {
	for _, c := range p.DateColumns {
		if !ds.HasColumn(c) {
			continue
		}
		for _, row := range ds.Rows {
			if t, ok := parseTime(row[c]); ok {
				row[c] = t
			} else {
				row[c] = nil
			}
		}
	}
	for _, c := range p.NumericColumns {
		if !ds.HasColumn(c) {
			continue
		}
		for _, row := range ds.Rows {
			if n, ok := toNumber(row[c]); ok {
				row[c] = n
			} else {
				row[c] = nil
			}
		}
	}
	for _, c := range p.TextColumns {
		if !ds.HasColumn(c) {
			continue
		}
		for _, row := range ds.Rows {
			if row[c] != nil {
				row[c] = FormatCell(row[c])
			}
		}
	}
}

func (t *Transformer) derive(ds *model.Dataset, features []Feature) {
	now := t.now()
	for _, f := range features {
		if !ds.HasColumn(f.Source) {
			continue
		}
		if !ds.HasColumn(f.Name) {
			ds.Columns = append(ds.Columns, f.Name)
		}
		for _, row := range ds.Rows {
			src, ok := row[f.Source].(time.Time)
			if !ok {
				row[f.Name] = nil
				continue
			}
			row[f.Name] = extract(f.Kind, src, now)
		}
	}
}

func extract(kind FeatureKind, t, now time.Time) any {
	switch kind {
	case KindYear:
		return int64(t.Year())
	case KindMonth:
		return int64(t.Month())
	case KindDay:
		return int64(t.Day())
	case KindHour:
		return int64(t.Hour())
	case KindYearsSince:
		days := int64(math.Floor(now.Sub(t).Hours() / 24))
		if days < 0 {
			return -((-days + 364) / 365)
		}
		return days / 365
	}
	return nil
}

// dedup 删除所有列完全相同的重复行，保留第一次出现的行，返回删除的行数。
func dedup(ds *model.Dataset) int {
	seen := make(map[string]struct{}, len(ds.Rows))
	kept := ds.Rows[:0]
	for _, row := range ds.Rows {
		key := rowKey(ds.Columns, row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	removed := len(ds.Rows) - len(kept)
	ds.Rows = kept
	return removed
}

func rowKey(columns []string, row model.Row) string {
	var b strings.Builder
	for _, c := range columns {
		v := row[c]
		// nil 与空字符串需要区分
		if v == nil {
			b.WriteString("\x00")
		} else {
			fmt.Fprintf(&b, "%T:%s", v, FormatCell(v))
		}
		b.WriteString("\x1f")
	}
	return b.String()
}

func project(ds *model.Dataset, columns []string) *model.Dataset {
	out := &model.Dataset{Columns: append([]string(nil), columns...), Rows: make([]model.Row, len(ds.Rows))}
	for i, row := range ds.Rows {
		nr := make(model.Row, len(columns))
		for _, c := range columns {
			nr[c] = row[c]
		}
		out.Rows[i] = nr
	}
	return out
}
