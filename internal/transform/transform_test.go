package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTransformer(s FeatureSuggester) *Transformer {
	t := NewTransformer(s)
	t.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return t
}

func salesRaw() *model.Dataset {
	return &model.Dataset{
		Columns: []string{"invoice_id", "customer_name", "product", "revenue", "date", "region"},
		Rows: []model.Row{
			{"invoice_id": "I1", "customer_name": "Ann", "product": "pen", "revenue": int64(10), "date": "2024-03-05", "region": "n"},
			{"invoice_id": "I2", "customer_name": nil, "product": "ink", "revenue": nil, "date": "not a date", "region": "s"},
			{"invoice_id": "I3", "customer_name": "Cy", "product": "pad", "revenue": int64(20), "date": "2023-12-31", "region": "e"},
			{"invoice_id": "I1", "customer_name": "Ann", "product": "pen", "revenue": int64(10), "date": "2024-03-05", "region": "n"},
		},
	}
}

func TestTransformSales(t *testing.T) {
	raw := salesRaw()
	out, err := fixedTransformer(nil).Transform(context.Background(), raw, "sales", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_name", "revenue", "invoice_id", "product", "date", "year", "month"}, out.Columns)
	require.Len(t, out.Rows, 3, "exact duplicate removed")

	first := out.Rows[0]
	assert.Equal(t, int64(2024), first["year"])
	assert.Equal(t, int64(3), first["month"])
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), first["date"])

	second := out.Rows[1]
	assert.Equal(t, "Unknown", second["customer_name"])
	assert.InDelta(t, 40.0/3.0, second["revenue"], 1e-9, "filled with the column mean")
	assert.Nil(t, second["date"], "unparseable date becomes null")
	assert.Nil(t, second["year"])

	for _, row := range out.Rows {
		assert.Len(t, row, len(out.Columns))
	}
	assert.Len(t, raw.Rows, 4, "input is not modified")
	assert.Equal(t, "2024-03-05", raw.Rows[0]["date"])
}

func TestTransformHRYearsOfService(t *testing.T) {
	ds := &model.Dataset{
		Columns: []string{"employee_id", "name", "salary", "designation", "joining_date"},
		Rows: []model.Row{
			{"employee_id": int64(1), "name": "Ann", "salary": "1,200", "designation": "dev", "joining_date": "2020-05-31"},
			{"employee_id": int64(2), "name": "Bo", "salary": "n/a", "designation": "ops", "joining_date": "2024-06-02"},
		},
	}
	out, err := fixedTransformer(nil).Transform(context.Background(), ds, "HR", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Rows[0]["years_of_service"])
	assert.Equal(t, int64(5), out.Rows[0]["month"])
	assert.Equal(t, int64(1200), out.Rows[0]["salary"])
	assert.Nil(t, out.Rows[1]["salary"])
	assert.Equal(t, int64(0), out.Rows[1]["years_of_service"])
}

func TestTransformMissingColumns(t *testing.T) {
	ds := &model.Dataset{
		Columns: []string{"sensor_id", "timestamp", "value"},
		Rows:    []model.Row{{"sensor_id": "s1", "timestamp": "2024-01-01 10:00:00", "value": 1.5}},
	}
	_, err := fixedTransformer(nil).Transform(context.Background(), ds, "iot", nil)
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "location")
	assert.Contains(t, err.Error(), "device_type")
	assert.NotContains(t, err.Error(), "hour")
}

func TestTransformInferredProfile(t *testing.T) {
	ds := &model.Dataset{
		Columns: []string{"ticket", "opened_at", "cost", "notes"},
		Rows: []model.Row{
			{"ticket": "T1", "opened_at": "2024-02-03T08:00:00", "cost": 3.5, "notes": "x"},
			{"ticket": "T2", "opened_at": "2024-04-05T09:30:00", "cost": int64(2), "notes": "y"},
		},
	}
	out, err := fixedTransformer(nil).Transform(context.Background(), ds, "support", []string{"ticket", "opened_at", "cost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ticket", "opened_at", "cost", "year", "month"}, out.Columns)
	assert.Equal(t, int64(4), out.Rows[1]["month"])
}

func TestTransformNumericColumnWithDateLikeName(t *testing.T) {
	ds := &model.Dataset{
		Columns: []string{"account_id", "days_active", "uptime_hours", "shift_time"},
		Rows: []model.Row{
			{"account_id": "a1", "days_active": int64(12), "uptime_hours": 3.5, "shift_time": "morning"},
			{"account_id": "a2", "days_active": int64(7), "uptime_hours": nil, "shift_time": "night"},
		},
	}
	out, err := fixedTransformer(nil).Transform(context.Background(), ds, "usage", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"account_id", "days_active", "uptime_hours", "shift_time"}, out.Columns)
	assert.Equal(t, int64(12), out.Rows[0]["days_active"])
	assert.Equal(t, 3.5, out.Rows[0]["uptime_hours"])
	assert.Equal(t, "morning", out.Rows[0]["shift_time"])
	assert.Equal(t, "night", out.Rows[1]["shift_time"])
}

func TestLooksLikeDate(t *testing.T) {
	assert.False(t, looksLikeDate("days_active", []any{int64(1), int64(2)}))
	assert.False(t, looksLikeDate("runtime_ms", []any{1.5, nil}))
	assert.False(t, looksLikeDate("created_at", []any{nil, nil}))
	assert.True(t, looksLikeDate("created_at", []any{"2024-01-02", "2024-01-03", "?"}))
	assert.False(t, looksLikeDate("label", []any{"2024-01-02", "x"}))
	assert.True(t, looksLikeDate("label", []any{"2024-01-02", "2024/01/03"}))
}

func TestYearsSinceFloorsFutureDates(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(-1), extract(KindYearsSince, now.Add(12*time.Hour), now))
	assert.Equal(t, int64(0), extract(KindYearsSince, now.Add(-12*time.Hour), now))
	assert.Equal(t, int64(1), extract(KindYearsSince, now.AddDate(0, 0, -365), now))
	assert.Equal(t, int64(-2), extract(KindYearsSince, now.AddDate(0, 0, 366), now))
}

type stubSuggester struct {
	f   Feature
	err error
}

func (s stubSuggester) SuggestFeature(context.Context, string, []string, []string) (Feature, error) {
	return s.f, s.err
}

func TestTransformSuggestedFeature(t *testing.T) {
	ds := &model.Dataset{
		Columns: []string{"ticket", "opened_at"},
		Rows:    []model.Row{{"ticket": "T1", "opened_at": "2024-02-03T08:00:00"}},
	}
	ctx := context.Background()

	out, err := fixedTransformer(stubSuggester{f: Feature{Name: "open_hour", Source: "opened_at", Kind: KindHour}}).
		Transform(ctx, ds, "support", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ticket", "opened_at", "year", "month", "open_hour"}, out.Columns)
	assert.Equal(t, int64(8), out.Rows[0]["open_hour"])

	rejected := []stubSuggester{
		{f: Feature{Name: "open_hour", Source: "ticket", Kind: KindHour}},
		{f: Feature{Name: "open_hour", Source: "opened_at", Kind: "weekday"}},
		{f: Feature{Name: "ticket", Source: "opened_at", Kind: KindHour}},
		{err: errors.New("model down")},
	}
	for _, s := range rejected {
		out, err := fixedTransformer(s).Transform(ctx, ds, "support", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"ticket", "opened_at", "year", "month"}, out.Columns)
	}
}

type genLLM struct{ answer string }

func (g genLLM) Chat(context.Context, []llm.Message, []llm.ToolDefinition) (*llm.Reply, error) {
	return nil, errors.New("unused")
}
func (g genLLM) Generate(context.Context, []llm.Message, *llm.GenerationParams) (string, error) {
	return g.answer, nil
}
func (g genLLM) StreamChatMessages(context.Context, []llm.Message, *llm.GenerationParams, llm.MessageWriter) error {
	return errors.New("unused")
}

func TestLLMFeatureSuggester(t *testing.T) {
	s := NewLLMFeatureSuggester(genLLM{answer: "```json\n{\"name\": \" open_day \", \"source\": \"opened_at\", \"kind\": \"DAY\"}\n```"})
	f, err := s.SuggestFeature(context.Background(), "support", []string{"opened_at"}, []string{"opened_at"})
	require.NoError(t, err)
	assert.Equal(t, Feature{Name: "open_day", Source: "opened_at", Kind: KindDay}, f)
}

func TestWriteCSV(t *testing.T) {
	out, err := fixedTransformer(nil).Transform(context.Background(), salesRaw(), "sales", nil)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nested", "transformed_sales.csv")
	require.NoError(t, WriteCSV(path, out))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "customer_name,revenue,invoice_id,product,date,year,month", lines[0])
	assert.Equal(t, "Ann,10,I1,pen,2024-03-05,2024,3", lines[1])
}

func TestCheckShape(t *testing.T) {
	ds := &model.Dataset{Columns: []string{"a", "b"}, Rows: []model.Row{{"a": "x,y", "b": "line\nbreak"}}}
	assert.NoError(t, checkShape(ds))
	ds.Rows = append(ds.Rows, model.Row{"a": 1})
	assert.ErrorIs(t, checkShape(ds), ErrRowShape)
}
