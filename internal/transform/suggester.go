package transform

import (
	"context"
	"fmt"
	"strings"

	"datapilot-go/pkg/llm"
)

// FeatureSuggester 为没有内置规则的类别提出一个派生列。
type FeatureSuggester interface {
	SuggestFeature(ctx context.Context, category string, columns, dateColumns []string) (Feature, error)
}

// LLMFeatureSuggester 要求模型返回完整的列定义 JSON，而不是文字描述。
type LLMFeatureSuggester struct {
	client llm.Client
}

// NewLLMFeatureSuggester 创建基于模型的派生列建议器。
func NewLLMFeatureSuggester(client llm.Client) *LLMFeatureSuggester {
	return &LLMFeatureSuggester{client: client}
}

func (s *LLMFeatureSuggester) SuggestFeature(ctx context.Context, category string, columns, dateColumns []string) (Feature, error) {
	prompt := fmt.Sprintf(`Dataset category: %s
Columns: %s
Date columns: %s
Propose exactly one meaningful derived column computed from one of the date columns.
Answer with a JSON object only: {"name": "<new column name>", "source": "<date column>", "kind": "year|month|day|hour|years_since"}`,
		category, strings.Join(columns, ", "), strings.Join(dateColumns, ", "))
	zero := 0.0
	answer, err := s.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a data engineer. Reply with JSON only."},
		{Role: llm.RoleUser, Content: prompt},
	}, &llm.GenerationParams{Temperature: &zero})
	if err != nil {
		return Feature{}, err
	}
	f, err := llm.ParseJSONResponse[Feature](answer)
	if err != nil {
		return Feature{}, err
	}
	f.Name = strings.TrimSpace(f.Name)
	f.Source = strings.TrimSpace(f.Source)
	f.Kind = FeatureKind(strings.ToLower(strings.TrimSpace(string(f.Kind))))
	return f, nil
}
