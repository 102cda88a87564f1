package retrieval

import (
	"context"
	"fmt"
	"strings"

	"datapilot-go/pkg/embedding"
	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/log"
)

const defaultTopK = 5

// Prompt 控制问答的系统提示与上下文包裹符。
type Prompt struct {
	Rules        string
	RefStart     string
	RefEnd       string
	NoResultText string
}

// Querier 检索最近的行并交给模型生成答案。
type Querier struct {
	embedder embedding.Client
	store    VectorStore
	registry Registry
	llm      llm.Client
	topK     int
	prompt   Prompt
	gen      *llm.GenerationParams
}

// NewQuerier topK <= 0 时使用 5。gen 可以为 nil。
func NewQuerier(embedder embedding.Client, store VectorStore, registry Registry, client llm.Client, topK int, prompt Prompt, gen *llm.GenerationParams) *Querier {
	if topK <= 0 {
		topK = defaultTopK
	}
	if prompt.RefStart == "" {
		prompt.RefStart = "<<ROWS>>"
	}
	if prompt.RefEnd == "" {
		prompt.RefEnd = "<<END>>"
	}
	if prompt.NoResultText == "" {
		prompt.NoResultText = "(no rows)"
	}
	return &Querier{embedder: embedder, store: store, registry: registry, llm: client, topK: topK, prompt: prompt, gen: gen}
}

// Query 返回模型生成的原始答案文本，不做任何改写。
func (q *Querier) Query(ctx context.Context, fileName, question string) (string, error) {
	msgs, err := q.prepare(ctx, fileName, question)
	if err != nil {
		return "", err
	}
	answer, err := q.llm.Generate(ctx, msgs, q.gen)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// Stream 与 Query 相同，但把答案分块写入 writer。
func (q *Querier) Stream(ctx context.Context, fileName, question string, writer llm.MessageWriter) error {
	msgs, err := q.prepare(ctx, fileName, question)
	if err != nil {
		return err
	}
	return q.llm.StreamChatMessages(ctx, msgs, q.gen, writer)
}

// Files 列出已建立索引的文件。
func (q *Querier) Files(ctx context.Context) ([]string, error) {
	files, err := q.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.FileName
	}
	return names, nil
}

func (q *Querier) prepare(ctx context.Context, fileName, question string) ([]llm.Message, error) {
	entry, err := q.registry.FindByFileName(ctx, fileName)
	if err != nil {
		return nil, fmt.Errorf("lookup index of %s: %w", fileName, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, fileName)
	}

	vector, err := q.embedder.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if entry.Dimensions > 0 && len(vector) != entry.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index %s has %d", ErrDimensionMismatch, len(vector), fileName, entry.Dimensions)
	}

	texts, err := q.store.Nearest(ctx, fileName, vector, q.topK)
	if err != nil {
		return nil, fmt.Errorf("search index of %s: %w", fileName, err)
	}
	// 登记存在但向量已丢失（例如重建时批量写入失败），按未建索引处理
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %s is registered but has no vectors", ErrIndexNotFound, fileName)
	}
	log.Infof("[Querier] 文件 %s 命中 %d 行", fileName, len(texts))

	return []llm.Message{
		{Role: llm.RoleSystem, Content: q.systemMessage(strings.Join(texts, "\n"))},
		{Role: llm.RoleUser, Content: question},
	}, nil
}

func (q *Querier) systemMessage(context string) string {
	var sys strings.Builder
	if q.prompt.Rules != "" {
		sys.WriteString(q.prompt.Rules)
		sys.WriteString("\n\n")
	}
	sys.WriteString(q.prompt.RefStart)
	sys.WriteString("\n")
	if context != "" {
		sys.WriteString(context)
	} else {
		sys.WriteString(q.prompt.NoResultText)
	}
	sys.WriteString("\n")
	sys.WriteString(q.prompt.RefEnd)
	return sys.String()
}
