package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/llm"
)

type fakeSchemas struct {
	records []model.SchemaRecord
	err     error
}

func (f *fakeSchemas) ListByDB(_ context.Context, db string) ([]model.SchemaRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.SchemaRecord
	for _, r := range f.records {
		if r.DBName == db {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSchemas) Find(_ context.Context, db, category string) (*model.SchemaRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.records {
		if r.DBName == db && r.Category == model.NormalizeCategory(category) {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

type fakeStore struct {
	mu       sync.Mutex
	docs     map[string][]model.Row
	inserts  int
	replaces int
	failOn   string
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]model.Row{}}
}

func (f *fakeStore) ns(db, coll string) string { return db + "." + coll }

func (f *fakeStore) FindByKey(_ context.Context, db, coll, key string, value any) (model.Row, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "find" {
		return nil, false, errors.New("find failed")
	}
	for _, r := range f.docs[f.ns(db, coll)] {
		if fmt.Sprint(r[key]) == fmt.Sprint(value) {
			return r, true, nil
		}
	}
	return nil, false, nil
}

func (f *fakeStore) Insert(_ context.Context, db, coll string, _ []string, row model.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "insert" {
		return errors.New("insert failed")
	}
	f.inserts++
	f.docs[f.ns(db, coll)] = append(f.docs[f.ns(db, coll)], row)
	return nil
}

func (f *fakeStore) ReplaceByKey(_ context.Context, db, coll, key string, value any, _ []string, row model.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn == "replace" {
		return errors.New("replace failed")
	}
	f.replaces++
	rows := f.docs[f.ns(db, coll)]
	for i, r := range rows {
		if fmt.Sprint(r[key]) == fmt.Sprint(value) {
			rows[i] = row
			return nil
		}
	}
	f.docs[f.ns(db, coll)] = append(rows, row)
	return nil
}

func (f *fakeStore) count(db, coll string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[f.ns(db, coll)])
}

type fakeSink struct {
	entries []model.IngestionLog
	err     error
}

func (f *fakeSink) Append(_ context.Context, entry *model.IngestionLog) error {
	if f.err != nil {
		return f.err
	}
	entry.ID = uint(len(f.entries) + 1)
	f.entries = append(f.entries, *entry)
	return nil
}

// scriptedLLM 按顺序返回预设的 Chat 回复。
type scriptedLLM struct {
	replies  []*llm.Reply
	chatErr  error
	calls    int
	lastMsgs []llm.Message
	generate string
	genErr   error
}

func (s *scriptedLLM) Chat(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (*llm.Reply, error) {
	s.lastMsgs = messages
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	if s.calls >= len(s.replies) {
		return nil, errors.New("script exhausted")
	}
	r := s.replies[s.calls]
	s.calls++
	return r, nil
}

func (s *scriptedLLM) Generate(context.Context, []llm.Message, *llm.GenerationParams) (string, error) {
	return s.generate, s.genErr
}

func (s *scriptedLLM) StreamChatMessages(context.Context, []llm.Message, *llm.GenerationParams, llm.MessageWriter) error {
	return errors.New("not supported")
}

func toolReply(stage Stage) *llm.Reply {
	return &llm.Reply{ToolCalls: []llm.ToolCall{{ID: "call_" + string(stage), Name: string(stage), Arguments: "{}"}}}
}

func salesSchemas() *fakeSchemas {
	return &fakeSchemas{records: []model.SchemaRecord{
		{DBName: "shop", Category: "sales", Columns: []string{"invoice_id", "customer_name", "revenue"}},
		{DBName: "shop", Category: "hr", Columns: []string{"employee_id", "salary"}},
	}}
}
