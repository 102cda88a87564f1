// Package report 为清洗后的数据集生成 Markdown 质量报告。
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/log"
)

// SchemaSource 提供类别 schema，用于展示主键。
type SchemaSource interface {
	Find(ctx context.Context, dbName, category string) (*model.SchemaRecord, error)
}

// Report 是一份数据质量报告。
type Report struct {
	FileName    string
	Category    string
	Database    string
	GeneratedAt time.Time

	Rows       int
	Cols       int
	Columns    []ColumnSummary
	TotalNulls int
	Duplicates int
	PrimaryKey string

	Anomalies      []string
	DerivedColumns []string
	RawColumns     []string
	Suggestions    []string
	AnalystNotes   string
}

// Generator 生成报告。生成失败只返回 false，不会把错误抛给调用方。
type Generator struct {
	schemas  SchemaSource
	narrator Narrator
	now      func() time.Time
}

// NewGenerator schemas 与 narrator 都可以为 nil。
func NewGenerator(schemas SchemaSource, narrator Narrator) *Generator {
	return &Generator{schemas: schemas, narrator: narrator, now: time.Now}
}

// Generate 返回 (report, true)；数据集为空或计算出错时返回 (nil, false)。
func (g *Generator) Generate(ctx context.Context, ds *model.Dataset, category, database string) (rep *Report, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[ReportGenerator] 生成报告时发生 panic: %v", r)
			rep, ok = nil, false
		}
	}()
	if ds == nil || len(ds.Columns) == 0 || len(ds.Rows) == 0 {
		log.Warnf("[ReportGenerator] 数据集为空，无法生成报告")
		return nil, false
	}

	rep = &Report{
		Category:    category,
		Database:    database,
		GeneratedAt: g.now(),
		Rows:        len(ds.Rows),
		Cols:        len(ds.Columns),
		Duplicates:  duplicateRows(ds),
	}
	for _, c := range ds.Columns {
		s := summarize(ds, c)
		rep.Columns = append(rep.Columns, s)
		rep.TotalNulls += s.Nulls
		if isDerived(category, c) {
			rep.DerivedColumns = append(rep.DerivedColumns, c)
		} else {
			rep.RawColumns = append(rep.RawColumns, c)
		}
	}
	rep.PrimaryKey = g.primaryKey(ctx, ds, category, database)
	rep.Anomalies = anomalies(rep)
	rep.Suggestions = suggestions(ds, rep)

	if g.narrator != nil {
		notes, err := g.narrator.Narrate(ctx, rep.Markdown())
		if err != nil {
			log.Warnf("[ReportGenerator] 模型点评失败，跳过该段落: %v", err)
		} else {
			rep.AnalystNotes = strings.TrimSpace(notes)
		}
	}
	return rep, true
}

// primaryKey 依次取 schema 中带 id 的必需列、数据中第一个带 id 的列、第一列。
func (g *Generator) primaryKey(ctx context.Context, ds *model.Dataset, category, database string) string {
	if g.schemas != nil {
		rec, err := g.schemas.Find(ctx, database, category)
		if err != nil {
			log.Warnf("[ReportGenerator] 读取 schema 失败: %v", err)
		}
		if rec != nil {
			for _, c := range rec.Columns {
				if strings.Contains(strings.ToLower(c), "id") && ds.HasColumn(c) {
					return c
				}
			}
		}
	}
	for _, c := range ds.Columns {
		if strings.Contains(strings.ToLower(c), "id") {
			return c
		}
	}
	return ds.Columns[0]
}

func anomalies(rep *Report) []string {
	var out []string
	if rep.Duplicates > 0 {
		out = append(out, fmt.Sprintf("%d duplicate row(s)", rep.Duplicates))
	}
	for _, c := range rep.Columns {
		if !c.numeric() {
			continue
		}
		if c.Negatives > 0 && expectsNonNegative(c.Name) {
			out = append(out, fmt.Sprintf("`%s`: %d negative value(s) in a column expected to be non-negative", c.Name, c.Negatives))
		}
		if c.IQROutliers > 0 {
			out = append(out, fmt.Sprintf("`%s`: %d outlier(s) outside 1.5×IQR", c.Name, c.IQROutliers))
		}
		if c.SigmaOutliers > 0 {
			out = append(out, fmt.Sprintf("`%s`: %d value(s) beyond 3σ of the mean", c.Name, c.SigmaOutliers))
		}
	}
	return out
}

func suggestions(ds *model.Dataset, rep *Report) []string {
	var out []string
	for _, c := range rep.Columns {
		switch {
		case c.Kind == "datetime":
			for _, f := range []string{"quarter", "day_of_week"} {
				name := c.Name + "_" + f
				if !ds.HasColumn(name) && !ds.HasColumn(f) {
					out = append(out, fmt.Sprintf("`%s`: %s of `%s`", name, strings.ReplaceAll(f, "_", " "), c.Name))
				}
			}
		case c.numeric() && !isDerived(rep.Category, c.Name) && c.Distinct > 10:
			out = append(out, fmt.Sprintf("`%s_band`: bucketed ranges of `%s` (min %.4g, max %.4g)", c.Name, c.Name, c.Min, c.Max))
		}
	}
	return out
}
