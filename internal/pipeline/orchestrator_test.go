package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesCSV = "invoice_id,customer_name,revenue\nA1,Ann,10\nA2,Bob,20\n"

type harness struct {
	orch   *Orchestrator
	layout Layout
	store  *fakeStore
	sink   *fakeSink
	trail  *Trail
}

func newHarness(t *testing.T, guided Decider) *harness {
	t.Helper()
	layout := NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure())
	schemas := salesSchemas()
	h := &harness{layout: layout, store: newFakeStore(), sink: &fakeSink{}, trail: NewTrail()}
	h.orch = NewOrchestrator(Dependencies{
		Classifier: NewClassifier(schemas, DefaultKeywords),
		Validator:  NewValidator(schemas),
		Keys:       NewKeyIdentifier(nil),
		Persister:  NewPersister(h.store),
		Mover:      NewMover(layout),
		Logs:       h.sink,
		Layout:     layout,
	}, GuidedOptions{Decider: guided, MaxIterations: 10, Timeout: 200 * time.Millisecond})
	return h
}

func (h *harness) stage(t *testing.T, name, content string) string {
	return writeFile(t, h.layout.StagingDir(), name, content)
}

func guidedScript(summary string) *scriptedLLM {
	return &scriptedLLM{replies: []*llm.Reply{
		toolReply(StageClassify),
		toolReply(StageValidate),
		toolReply(StageIdentifyKey),
		toolReply(StagePersist),
		toolReply(StageMove),
		toolReply(StageLog),
		{Content: summary},
	}}
}

func TestRunDeterministicValidFile(t *testing.T) {
	h := newHarness(t, nil)
	src := h.stage(t, "sales.csv", salesCSV)

	out, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	require.NoError(t, err)
	assert.Equal(t, StrategyDeterministic, out.Strategy)
	assert.Equal(t, "sales", out.Record.Category)
	assert.True(t, out.Record.Valid)
	assert.Equal(t, "invoice_id", out.Record.PrimaryKey)
	assert.Equal(t, 2, out.Inserted)
	assert.Equal(t, h.layout.OrganizedPath("sales", "sales.csv"), out.Destination)
	assert.FileExists(t, out.Destination)
	assert.NoFileExists(t, src)
	require.Len(t, h.sink.entries, 1)
	assert.Equal(t, "sales", h.sink.entries[0].Category)
	assert.NotEmpty(t, h.trail.Lines())
}

func TestRunGuidedSuccess(t *testing.T) {
	script := guidedScript("Category: sales\nValid: true")
	h := newHarness(t, NewModelDecider(script))
	src := h.stage(t, "sales.csv", salesCSV)

	out, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	require.NoError(t, err)
	assert.Equal(t, StrategyGuided, out.Strategy)
	assert.Len(t, h.sink.entries, 1)
	assert.Equal(t, StrategyGuided, h.sink.entries[0].Strategy)

	// 最后一轮对话应包含全部 6 次工具调用及其结果
	var toolResults int
	for _, m := range script.lastMsgs {
		if m.Role == llm.RoleTool {
			toolResults++
		}
	}
	assert.Equal(t, 6, toolResults)
}

func TestRunGuidedIllegalStageFallsBack(t *testing.T) {
	script := &scriptedLLM{replies: []*llm.Reply{toolReply(StagePersist)}}
	h := newHarness(t, NewModelDecider(script))
	src := h.stage(t, "sales.csv", salesCSV)

	out, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	require.NoError(t, err)
	assert.Equal(t, StrategyDeterministic, out.Strategy)
	assert.Equal(t, 2, h.store.replaces, "only the deterministic run persists")
	assert.Len(t, h.sink.entries, 1)
}

func TestRunGuidedBadSummaryCarriesEffects(t *testing.T) {
	cases := map[string]string{
		"error marker":   "Error: something broke",
		"wrong category": "Category: hr\nValid: true",
		"prose":          "All done, the file is sales and valid.",
	}
	for name, summary := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, NewModelDecider(guidedScript(summary)))
			src := h.stage(t, "sales.csv", salesCSV)

			out, err := h.orch.Run(context.Background(), src, "shop", h.trail)
			require.NoError(t, err)
			assert.Equal(t, StrategyDeterministic, out.Strategy)
			assert.Len(t, h.sink.entries, 1, "no duplicate log entry")
			assert.Equal(t, 2, h.store.replaces, "rows are not written twice")
			assert.Equal(t, 2, out.Inserted)
			assert.FileExists(t, h.layout.OrganizedPath("sales", "sales.csv"))
		})
	}
}

func TestRunGuidedDeciderErrorFallsBack(t *testing.T) {
	h := newHarness(t, NewModelDecider(&scriptedLLM{chatErr: errors.New("rate limited")}))
	src := h.stage(t, "sales.csv", salesCSV)

	out, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	require.NoError(t, err)
	assert.Equal(t, StrategyDeterministic, out.Strategy)
}

type blockingDecider struct{}

func (blockingDecider) NextStage(ctx context.Context, _ *State) (StageChoice, error) {
	<-ctx.Done()
	return StageChoice{}, ctx.Err()
}

func TestRunGuidedTimeoutFallsBack(t *testing.T) {
	h := newHarness(t, blockingDecider{})
	src := h.stage(t, "sales.csv", salesCSV)

	out, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	require.NoError(t, err)
	assert.Equal(t, StrategyDeterministic, out.Strategy)
}

func TestRunInvalidSchemaStaysInStaging(t *testing.T) {
	h := newHarness(t, nil)
	src := h.stage(t, "sales.csv", "invoice_id,revenue\nA1,10\n")

	out, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	require.NoError(t, err)
	assert.Equal(t, "sales", out.Record.Category)
	assert.False(t, out.Record.Valid)
	assert.Empty(t, out.Destination)
	assert.FileExists(t, src)
	assert.Zero(t, h.store.count("shop", "sales"))
	require.Len(t, h.sink.entries, 1)
	assert.False(t, h.sink.entries[0].Valid)
}

func TestRunUnclassified(t *testing.T) {
	h := newHarness(t, NewModelDecider(guidedScript("unused")))
	src := h.stage(t, "misc.csv", "foo,bar\n1,2\n")

	_, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	assert.ErrorIs(t, err, ErrUnclassified)
	require.Len(t, h.sink.entries, 1)
	assert.Equal(t, model.Unclassified, h.sink.entries[0].Category)
	assert.False(t, h.sink.entries[0].Valid)
	assert.FileExists(t, src)
}

// vanishingSink 在写日志时删除已移动的文件，用于触发移动后校验失败。
type vanishingSink struct {
	fakeSink
	path string
}

func (s *vanishingSink) Append(ctx context.Context, entry *model.IngestionLog) error {
	_ = os.Remove(s.path)
	return s.fakeSink.Append(ctx, entry)
}

func TestRunVerificationFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.deps.Logs = &vanishingSink{path: h.layout.OrganizedPath("sales", "sales.csv")}
	src := h.stage(t, "sales.csv", salesCSV)

	_, err := h.orch.Run(context.Background(), src, "shop", h.trail)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestRunInputErrors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.orch.Run(ctx, h.stage(t, "notes.txt", "x"), "shop", h.trail)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = h.orch.Run(ctx, h.layout.StagingPath("ghost.csv"), "shop", h.trail)
	assert.ErrorIs(t, err, ErrSourceMissing)

	_, err = h.orch.Run(ctx, h.stage(t, "empty.csv", "a,b\n"), "shop", h.trail)
	assert.ErrorIs(t, err, model.ErrEmptyDataset)
}

func TestGuidedIterationClamp(t *testing.T) {
	o := NewOrchestrator(Dependencies{}, GuidedOptions{MaxIterations: 3})
	assert.Equal(t, minGuidedIterations, o.guided.MaxIterations)
	o = NewOrchestrator(Dependencies{}, GuidedOptions{MaxIterations: 99})
	assert.Equal(t, maxGuidedIterations, o.guided.MaxIterations)
	o = NewOrchestrator(Dependencies{}, GuidedOptions{})
	assert.Equal(t, defaultGuidedIterations, o.guided.MaxIterations)
}
