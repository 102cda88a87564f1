package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"datapilot-go/internal/model"
)

// SchemaSource 是分类与校验读取类别 schema 的来源，由 repository.SchemaRepository 实现。
type SchemaSource interface {
	ListByDB(ctx context.Context, dbName string) ([]model.SchemaRecord, error)
	Find(ctx context.Context, dbName, category string) (*model.SchemaRecord, error)
}

// DefaultKeywords 是目标库中尚未登记任何 schema 时使用的内置关键词表。
var DefaultKeywords = map[string][]string{
	"sales": {"revenue", "customer", "invoice", "product"},
	"hr":    {"employee", "salary", "designation", "joining"},
	"iot":   {"sensor", "device", "timestamp", "location"},
}

// Classifier 选择与文件列名交集最大的类别。
// 平局时按类别名字母序取第一个，保证同样的输入总是得到同样的结果。
type Classifier struct {
	schemas  SchemaSource
	keywords map[string][]string
}

// NewClassifier 创建分类器；keywords 为 nil 时不启用关键词回退。
func NewClassifier(schemas SchemaSource, keywords map[string][]string) *Classifier {
	return &Classifier{schemas: schemas, keywords: keywords}
}

// Classify 返回最佳类别，无任何得分时返回 model.Unclassified。
func (c *Classifier) Classify(ctx context.Context, database string, columns []string) (string, error) {
	if len(columns) == 0 {
		return model.Unclassified, nil
	}
	records, err := c.schemas.ListByDB(ctx, database)
	if err != nil {
		return "", fmt.Errorf("load schemas for %q: %w", database, err)
	}

	var scores map[string]int
	if len(records) > 0 {
		scores = overlapScores(records, columns)
	} else {
		scores = keywordScores(c.keywords, columns)
	}
	return pickBest(scores), nil
}

func overlapScores(records []model.SchemaRecord, columns []string) map[string]int {
	have := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		have[col] = struct{}{}
	}
	scores := make(map[string]int, len(records))
	for _, rec := range records {
		n := 0
		seen := map[string]struct{}{}
		for _, req := range rec.Columns {
			if _, dup := seen[req]; dup {
				continue
			}
			seen[req] = struct{}{}
			if _, ok := have[req]; ok {
				n++
			}
		}
		scores[model.NormalizeCategory(rec.Category)] = n
	}
	return scores
}

func keywordScores(keywords map[string][]string, columns []string) map[string]int {
	scores := make(map[string]int, len(keywords))
	for category, words := range keywords {
		n := 0
		for _, col := range columns {
			lower := strings.ToLower(col)
			for _, w := range words {
				if strings.Contains(lower, w) {
					n++
				}
			}
		}
		scores[category] = n
	}
	return scores
}

func pickBest(scores map[string]int) string {
	categories := make([]string, 0, len(scores))
	for c := range scores {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	best, bestScore := model.Unclassified, 0
	for _, c := range categories {
		if scores[c] > bestScore {
			best, bestScore = c, scores[c]
		}
	}
	return best
}
