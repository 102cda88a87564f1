package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/internal/report"
	"datapilot-go/internal/transform"
	"datapilot-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullSalesCSV = "invoice_id,customer_name,revenue,product,date\nA1,Ann,10,pen,2024-03-05\nA2,Bob,20,ink,2024-04-01\n"

type stubIndex struct {
	built map[string]*model.Dataset
	err   error
}

func (s *stubIndex) Build(_ context.Context, fileName, _ string, ds *model.Dataset) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.built[fileName] = ds
	return len(ds.Rows), nil
}

type stubArchive struct{ objects []string }

func (s *stubArchive) UploadFile(_ context.Context, objectName, _, _ string) error {
	s.objects = append(s.objects, objectName)
	return nil
}

type memLocks struct{ held map[string]string }

func (m *memLocks) Acquire(_ context.Context, name, owner string, _ time.Duration) (bool, error) {
	if _, ok := m.held[name]; ok {
		return false, nil
	}
	m.held[name] = owner
	return true, nil
}

func (m *memLocks) Release(_ context.Context, name, owner string) error {
	if m.held[name] == owner {
		delete(m.held, name)
	}
	return nil
}

type absentReports struct{}

func (absentReports) Generate(context.Context, *model.Dataset, string, string) (*report.Report, bool) {
	return nil, false
}

type processorHarness struct {
	*harness
	proc    *Processor
	index   *stubIndex
	archive *stubArchive
	locks   *memLocks
}

func newProcessorHarness(t *testing.T, reports ReportGenerator) *processorHarness {
	h := newHarness(t, nil)
	ph := &processorHarness{
		harness: h,
		index:   &stubIndex{built: map[string]*model.Dataset{}},
		archive: &stubArchive{},
		locks:   &memLocks{held: map[string]string{}},
	}
	if reports == nil {
		reports = report.NewGenerator(nil, nil)
	}
	ph.proc = NewProcessor(h.orch, NewValidator(salesSchemas()), transform.NewTransformer(nil), reports,
		ph.index, ph.archive, ph.locks, h.layout, time.Minute)
	return ph
}

func TestIngestValidFileRunsEveryStage(t *testing.T) {
	ph := newProcessorHarness(t, nil)
	src := ph.stage(t, "sales.csv", fullSalesCSV)

	res, err := ph.proc.Ingest(context.Background(), src, "shop")
	require.NoError(t, err)
	assert.Equal(t, "sales", res.Category)
	assert.True(t, res.Valid)
	assert.Equal(t, "invoice_id", res.PrimaryKey)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, ph.layout.OrganizedPath("sales", "sales.csv"), res.OrganizedPath)
	assert.Equal(t, ph.layout.TransformedPath("sales.csv"), res.TransformedPath)
	assert.FileExists(t, res.TransformedPath)
	assert.FileExists(t, res.ReportPath)
	assert.Equal(t, "report/sales.md", res.ReportObject)
	assert.Equal(t, 2, res.IndexedRows)
	assert.NotEmpty(t, res.Logs)

	assert.Equal(t, []string{"transformed/transformed_sales.csv", "report/sales.md"}, ph.archive.objects)
	require.Contains(t, ph.index.built, "sales.csv")
	assert.Equal(t, []string{"customer_name", "revenue", "invoice_id", "product", "date", "year", "month"},
		ph.index.built["sales.csv"].Columns)

	md, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "sales.csv")
	assert.Empty(t, ph.locks.held, "lock released")
}

func TestIngestInvalidFileStopsAfterLog(t *testing.T) {
	ph := newProcessorHarness(t, nil)
	src := ph.stage(t, "staff.csv", "employee_id,name\nE1,Ann\n")

	res, err := ph.proc.Ingest(context.Background(), src, "shop")
	require.NoError(t, err)
	assert.Equal(t, "hr", res.Category)
	assert.False(t, res.Valid)
	assert.Empty(t, res.TransformedPath)
	assert.Empty(t, res.ReportPath)
	assert.Empty(t, ph.index.built)
	require.Len(t, ph.sink.entries, 1)
	assert.False(t, ph.sink.entries[0].Valid)
}

func TestIngestBusyFile(t *testing.T) {
	ph := newProcessorHarness(t, nil)
	src := ph.stage(t, "sales.csv", fullSalesCSV)
	ph.locks.held["sales.csv"] = "someone-else"

	res, err := ph.proc.Ingest(context.Background(), src, "shop")
	require.ErrorIs(t, err, ErrFileBusy)
	assert.NotEmpty(t, res.Logs)
	assert.FileExists(t, src, "file untouched")
	assert.Empty(t, ph.sink.entries)
}

func TestIngestReportUnavailable(t *testing.T) {
	ph := newProcessorHarness(t, absentReports{})
	src := ph.stage(t, "sales.csv", fullSalesCSV)

	_, err := ph.proc.Ingest(context.Background(), src, "shop")
	require.ErrorIs(t, err, ErrReportUnavailable)
	assert.Empty(t, ph.index.built)
}

func TestProcessDropsPermanentFailures(t *testing.T) {
	ph := newProcessorHarness(t, nil)
	src := ph.stage(t, "misc.csv", "colour,shape\nred,round\n")

	err := ph.proc.Process(context.Background(), tasks.IngestionTask{TaskID: "t1", FileName: "misc.csv", FilePath: src, Database: "shop"})
	assert.NoError(t, err)
	require.Len(t, ph.sink.entries, 1)
	assert.Equal(t, model.Unclassified, ph.sink.entries[0].Category)
}

func TestProcessReturnsTransientFailures(t *testing.T) {
	ph := newProcessorHarness(t, nil)
	ph.index.err = errors.New("es unavailable")
	src := ph.stage(t, "sales.csv", fullSalesCSV)

	err := ph.proc.Process(context.Background(), tasks.IngestionTask{TaskID: "t2", FileName: "sales.csv", FilePath: src, Database: "shop"})
	assert.Error(t, err)
}
