package report

import (
	"context"

	"datapilot-go/pkg/llm"
)

// Narrator 根据已渲染的报告写一段分析点评。
type Narrator interface {
	Narrate(ctx context.Context, reportMarkdown string) (string, error)
}

// LLMNarrator 使用大模型写点评。
type LLMNarrator struct {
	client llm.Client
}

// NewLLMNarrator 创建 LLMNarrator。
func NewLLMNarrator(client llm.Client) *LLMNarrator {
	return &LLMNarrator{client: client}
}

func (n *LLMNarrator) Narrate(ctx context.Context, reportMarkdown string) (string, error) {
	return n.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are an expert data analyst. Given a data quality report, write three to five short bullet points on data quality risks and next steps. Do not repeat the tables."},
		{Role: llm.RoleUser, Content: reportMarkdown},
	}, nil)
}
