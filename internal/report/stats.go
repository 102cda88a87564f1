package report

import (
	"math"
	"sort"
	"strings"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/internal/transform"
)

// ColumnSummary 是单列的类型与统计信息。
type ColumnSummary struct {
	Name     string
	Kind     string // integer|float|datetime|boolean|categorical|text|empty
	NonNull  int
	Nulls    int
	Distinct int

	// 仅数值列
	Min, Max, Mean, Std float64
	Negatives           int
	IQROutliers         int
	SigmaOutliers       int
}

func (c ColumnSummary) numeric() bool {
	return c.Kind == "integer" || c.Kind == "float"
}

func summarize(ds *model.Dataset, name string) ColumnSummary {
	s := ColumnSummary{Name: name}
	distinct := map[string]struct{}{}
	var nums []float64
	ints, floats, times, bools, texts := 0, 0, 0, 0, 0

	for _, row := range ds.Rows {
		v := row[name]
		if f, isFloat := v.(float64); isFloat && math.IsNaN(f) {
			v = nil
		}
		if v == nil {
			s.Nulls++
			continue
		}
		s.NonNull++
		distinct[transform.FormatCell(v)] = struct{}{}
		switch val := v.(type) {
		case int64:
			ints++
			nums = append(nums, float64(val))
		case float64:
			floats++
			nums = append(nums, val)
		case time.Time:
			times++
		case bool:
			bools++
		default:
			texts++
		}
	}
	s.Distinct = len(distinct)

	switch {
	case s.NonNull == 0:
		s.Kind = "empty"
	case ints == s.NonNull:
		s.Kind = "integer"
	case ints+floats == s.NonNull:
		s.Kind = "float"
	case times == s.NonNull:
		s.Kind = "datetime"
	case bools == s.NonNull:
		s.Kind = "boolean"
	case s.Distinct <= 20 || s.Distinct*2 <= s.NonNull:
		s.Kind = "categorical"
	default:
		s.Kind = "text"
	}

	if s.numeric() {
		fillNumeric(&s, nums)
	}
	return s
}

func fillNumeric(s *ColumnSummary, vals []float64) {
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	sum := 0.0
	for _, v := range vals {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		if v < 0 {
			s.Negatives++
		}
	}
	n := float64(len(vals))
	s.Mean = sum / n
	if len(vals) > 1 {
		ss := 0.0
		for _, v := range vals {
			d := v - s.Mean
			ss += d * d
		}
		s.Std = math.Sqrt(ss / (n - 1))
	}

	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	q1, q3 := quantile(sorted, 0.25), quantile(sorted, 0.75)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	for _, v := range vals {
		if v < lo || v > hi {
			s.IQROutliers++
		}
		if s.Std > 0 && math.Abs(v-s.Mean) > 3*s.Std {
			s.SigmaOutliers++
		}
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

func duplicateRows(ds *model.Dataset) int {
	seen := make(map[string]struct{}, len(ds.Rows))
	dups := 0
	for _, row := range ds.Rows {
		var b strings.Builder
		for _, c := range ds.Columns {
			if row[c] == nil {
				b.WriteString("\x00")
			} else {
				b.WriteString(transform.FormatCell(row[c]))
			}
			b.WriteString("\x1f")
		}
		key := b.String()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

var nonNegativeHints = []string{
	"revenue", "salary", "price", "amount", "cost", "quantity", "qty",
	"count", "total", "age", "years", "year", "month", "hour", "day",
}

// expectsNonNegative 按列名判断该数值列是否不应出现负数。
func expectsNonNegative(name string) bool {
	lower := strings.ToLower(name)
	for _, h := range nonNegativeHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

var derivedNames = map[string]struct{}{
	"year": {}, "month": {}, "day": {}, "hour": {}, "quarter": {}, "weekday": {},
	"day_of_week": {}, "years_of_service": {}, "years_since": {},
}

// isDerived 内置规则中的派生列，或名称符合日期拆分习惯的列。
func isDerived(category, name string) bool {
	if p, ok := transform.BuiltinProfile(category); ok {
		for _, f := range p.Features {
			if f.Name == name {
				return true
			}
		}
	}
	lower := strings.ToLower(name)
	if _, ok := derivedNames[lower]; ok {
		return true
	}
	for suffix := range derivedNames {
		if strings.HasSuffix(lower, "_"+suffix) {
			return true
		}
	}
	return false
}
