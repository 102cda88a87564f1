package pipeline

import (
	"context"
	"fmt"
	"strings"

	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/log"
)

// KeySuggester 给出"最可能唯一标识一行"的列名，结果不可信，需要由 KeyIdentifier 校验。
type KeySuggester interface {
	SuggestKey(ctx context.Context, category string, columns, required []string) (string, error)
}

// KeyIdentifier 选择主键列，并把不在列集合中的建议强制替换为第一列。
type KeyIdentifier struct {
	suggester KeySuggester
}

// NewKeyIdentifier suggester 为 nil 时使用启发式规则。
func NewKeyIdentifier(suggester KeySuggester) *KeyIdentifier {
	if suggester == nil {
		suggester = HeuristicKeySuggester{}
	}
	return &KeyIdentifier{suggester: suggester}
}

// Identify 返回主键列名；列集合为空时返回 ErrNoColumns。
func (k *KeyIdentifier) Identify(ctx context.Context, category string, columns, required []string) (string, error) {
	if len(columns) == 0 {
		return "", ErrNoColumns
	}
	suggested, err := k.suggester.SuggestKey(ctx, category, columns, required)
	if err != nil {
		log.Warnf("[KeyIdentifier] 主键建议失败，使用第一列 %q: %v", columns[0], err)
		return columns[0], nil
	}
	for _, c := range columns {
		if c == suggested {
			return suggested, nil
		}
	}
	if suggested != "" {
		log.Warnf("[KeyIdentifier] 建议的主键 %q 不在列中，使用第一列 %q", suggested, columns[0])
	}
	return columns[0], nil
}

// HeuristicKeySuggester 按列名规则猜测主键：id，*_id，*id，id_*。
type HeuristicKeySuggester struct{}

func (HeuristicKeySuggester) SuggestKey(_ context.Context, _ string, columns, required []string) (string, error) {
	candidates := append(append([]string(nil), required...), columns...)
	rules := []func(string) bool{
		func(c string) bool { return c == "id" },
		func(c string) bool { return strings.HasSuffix(c, "_id") },
		func(c string) bool { return strings.HasSuffix(c, "id") },
		func(c string) bool { return strings.HasPrefix(c, "id_") },
	}
	for _, rule := range rules {
		for _, c := range candidates {
			if rule(strings.ToLower(c)) {
				return c, nil
			}
		}
	}
	return "", nil
}

// LLMKeySuggester 让模型只返回一个列名。
type LLMKeySuggester struct {
	client llm.Client
}

// NewLLMKeySuggester 创建基于模型的主键建议器。
func NewLLMKeySuggester(client llm.Client) *LLMKeySuggester {
	return &LLMKeySuggester{client: client}
}

func (s *LLMKeySuggester) SuggestKey(ctx context.Context, category string, columns, required []string) (string, error) {
	prompt := fmt.Sprintf(
		"Category: %s\nColumns: %s\nRequired columns: %s\n"+
			"Return only the name of the column that most likely uniquely identifies a row. "+
			"It must be one of the columns. If uncertain, return the first column.",
		category, strings.Join(columns, ", "), strings.Join(required, ", "))
	zero := 0.0
	answer, err := s.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You identify primary key columns in tabular data. Answer with a single column name and nothing else."},
		{Role: llm.RoleUser, Content: prompt},
	}, &llm.GenerationParams{Temperature: &zero})
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(answer), "`'\"."), nil
}
