// Package transform 清洗已入库的数据集：补缺失值、类型转换、派生特征、去重与列投影。
package transform

import (
	"strings"
	"time"

	"datapilot-go/internal/model"
)

// FeatureKind 是派生列的计算方式，输入总是一个日期列。
type FeatureKind string

const (
	KindYear       FeatureKind = "year"
	KindMonth      FeatureKind = "month"
	KindDay        FeatureKind = "day"
	KindHour       FeatureKind = "hour"
	KindYearsSince FeatureKind = "years_since"
)

func (k FeatureKind) valid() bool {
	switch k {
	case KindYear, KindMonth, KindDay, KindHour, KindYearsSince:
		return true
	}
	return false
}

// Feature 描述一个派生列：Name = Kind(Source)。
type Feature struct {
	Name   string      `json:"name"`
	Source string      `json:"source"`
	Kind   FeatureKind `json:"kind"`
}

// Profile 是某个类别的清洗规则，Expected 决定输出列及其顺序。
type Profile struct {
	DateColumns    []string
	NumericColumns []string
	TextColumns    []string
	Features       []Feature
	Expected       []string
}

var builtinProfiles = map[string]Profile{
	"sales": {
		DateColumns:    []string{"date"},
		NumericColumns: []string{"revenue"},
		TextColumns:    []string{"customer_name", "product"},
		Features: []Feature{
			{Name: "year", Source: "date", Kind: KindYear},
			{Name: "month", Source: "date", Kind: KindMonth},
		},
		Expected: []string{"customer_name", "revenue", "invoice_id", "product", "date", "year", "month"},
	},
	"hr": {
		DateColumns:    []string{"joining_date"},
		NumericColumns: []string{"salary"},
		TextColumns:    []string{"name", "designation"},
		Features: []Feature{
			{Name: "years_of_service", Source: "joining_date", Kind: KindYearsSince},
			{Name: "month", Source: "joining_date", Kind: KindMonth},
		},
		Expected: []string{"employee_id", "name", "salary", "designation", "joining_date", "years_of_service", "month"},
	},
	"iot": {
		DateColumns:    []string{"timestamp"},
		NumericColumns: []string{"value"},
		TextColumns:    []string{"location", "device_type"},
		Features: []Feature{
			{Name: "year", Source: "timestamp", Kind: KindYear},
			{Name: "hour", Source: "timestamp", Kind: KindHour},
		},
		Expected: []string{"sensor_id", "timestamp", "value", "location", "device_type", "year", "hour"},
	},
}

// BuiltinProfile 返回内置类别的规则。
func BuiltinProfile(category string) (Profile, bool) {
	p, ok := builtinProfiles[model.NormalizeCategory(category)]
	return p, ok
}

var dateNameHints = []string{"date", "time", "timestamp", "_at", "day"}

// inferProfile 为没有内置规则的类别按列名与取值推断规则。
// 基础列取 schema 的必需列，没有 schema 时取全部列。
func inferProfile(ds *model.Dataset, required []string) Profile {
	base := make([]string, 0, len(required))
	for _, c := range required {
		if ds.HasColumn(c) {
			base = append(base, c)
		}
	}
	if len(base) == 0 {
		base = append(base, ds.Columns...)
	}

	var p Profile
	for _, c := range base {
		values := ds.Values(c)
		switch {
		case looksLikeDate(c, values):
			p.DateColumns = append(p.DateColumns, c)
		case allNumeric(values):
			p.NumericColumns = append(p.NumericColumns, c)
		default:
			p.TextColumns = append(p.TextColumns, c)
		}
	}
	p.Expected = append(p.Expected, base...)

	if len(p.DateColumns) > 0 {
		src := p.DateColumns[0]
		for _, kind := range []FeatureKind{KindYear, KindMonth} {
			name := string(kind)
			if ds.HasColumn(name) || contains(p.Expected, name) {
				continue
			}
			p.Features = append(p.Features, Feature{Name: name, Source: src, Kind: kind})
			p.Expected = append(p.Expected, name)
		}
	}
	return p
}

// looksLikeDate 只看取值：非空值必须都是字符串或时间。
// 列名带日期提示时多数能解析即可，否则要求全部能解析。
func looksLikeDate(name string, values []any) bool {
	lower := strings.ToLower(name)
	hinted := false
	for _, h := range dateNameHints {
		if strings.Contains(lower, h) {
			hinted = true
			break
		}
	}
	parsed, total := 0, 0
	for _, v := range values {
		if v == nil {
			continue
		}
		switch v.(type) {
		case string, time.Time:
		default:
			return false
		}
		total++
		if _, ok := parseTime(v); ok {
			parsed++
		}
	}
	if total == 0 {
		return false
	}
	if hinted {
		return parsed*2 > total
	}
	return parsed == total
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
