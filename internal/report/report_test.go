package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"datapilot-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schemaStub struct{ rec *model.SchemaRecord }

func (s schemaStub) Find(context.Context, string, string) (*model.SchemaRecord, error) {
	return s.rec, nil
}

type narratorStub struct {
	text string
	err  error
}

func (n narratorStub) Narrate(context.Context, string) (string, error) { return n.text, n.err }

func salesDataset() *model.Dataset {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	ds := &model.Dataset{Columns: []string{"customer_name", "revenue", "invoice_id", "product", "date", "year", "month"}}
	revenues := []any{int64(10), int64(12), int64(11), int64(13), int64(-5), int64(900), nil}
	for i, r := range revenues {
		ds.Rows = append(ds.Rows, model.Row{
			"customer_name": "c", "revenue": r, "invoice_id": string(rune('A' + i)),
			"product": "pen", "date": d, "year": int64(2024), "month": int64(3),
		})
	}
	ds.Rows = append(ds.Rows, ds.Rows[0])
	return ds
}

func TestGenerate(t *testing.T) {
	g := NewGenerator(schemaStub{}, nil)
	g.now = func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }

	rep, ok := g.Generate(context.Background(), salesDataset(), "sales", "shop")
	require.True(t, ok)
	assert.Equal(t, 8, rep.Rows)
	assert.Equal(t, 7, rep.Cols)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, 1, rep.TotalNulls)
	assert.Equal(t, "invoice_id", rep.PrimaryKey)
	assert.Equal(t, []string{"year", "month"}, rep.DerivedColumns)

	byName := map[string]ColumnSummary{}
	for _, c := range rep.Columns {
		byName[c.Name] = c
	}
	assert.Equal(t, "integer", byName["revenue"].Kind)
	assert.Equal(t, "datetime", byName["date"].Kind)
	assert.Equal(t, "categorical", byName["product"].Kind)
	assert.Equal(t, 1, byName["revenue"].Negatives)
	assert.Equal(t, 2, byName["revenue"].IQROutliers)

	md := rep.Markdown()
	assert.Contains(t, md, "## Schema")
	assert.Contains(t, md, "8 rows × 7 columns")
	assert.Contains(t, md, "negative value(s)")
	assert.Contains(t, md, "`date_quarter`")
	assert.NotContains(t, md, "## Analyst Notes")
}

func TestGeneratePrimaryKeyFromSchema(t *testing.T) {
	ds := &model.Dataset{
		Columns: []string{"row_id", "sensor_id", "value"},
		Rows:    []model.Row{{"row_id": int64(1), "sensor_id": "s", "value": 1.0}},
	}
	g := NewGenerator(schemaStub{rec: &model.SchemaRecord{Columns: []string{"sensor_id", "value"}}}, nil)
	rep, ok := g.Generate(context.Background(), ds, "iot", "plant")
	require.True(t, ok)
	assert.Equal(t, "sensor_id", rep.PrimaryKey)

	ds = &model.Dataset{Columns: []string{"a", "b"}, Rows: []model.Row{{"a": 1.0, "b": "x"}}}
	rep, ok = NewGenerator(nil, nil).Generate(context.Background(), ds, "misc", "db")
	require.True(t, ok)
	assert.Equal(t, "a", rep.PrimaryKey)
}

func TestGenerateEmptyIsAbsent(t *testing.T) {
	rep, ok := NewGenerator(nil, nil).Generate(context.Background(), &model.Dataset{Columns: []string{"a"}}, "misc", "db")
	assert.False(t, ok)
	assert.Nil(t, rep)
}

func TestGenerateNarrator(t *testing.T) {
	rep, ok := NewGenerator(nil, narratorStub{text: "- watch revenue"}).Generate(context.Background(), salesDataset(), "sales", "shop")
	require.True(t, ok)
	assert.Contains(t, rep.Markdown(), "## Analyst Notes\n\n- watch revenue")

	rep, ok = NewGenerator(nil, narratorStub{err: errors.New("quota")}).Generate(context.Background(), salesDataset(), "sales", "shop")
	require.True(t, ok, "narrator failure only drops the notes")
	assert.Empty(t, rep.AnalystNotes)
}
