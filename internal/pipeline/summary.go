package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

var summaryPattern = regexp.MustCompile(`^Category: ([^\n]+)\nValid: (true|false)$`)

// FormatSummary 生成标准摘要 "Category: X\nValid: true|false"。
func FormatSummary(category string, valid bool) string {
	return fmt.Sprintf("Category: %s\nValid: %t", category, valid)
}

// ParseSummary 严格解析摘要；任何偏离格式或包含 "Error:" 的内容都视为失败。
func ParseSummary(s string) (string, bool, error) {
	if strings.Contains(s, "Error:") {
		return "", false, fmt.Errorf("summary reports an error: %q", s)
	}
	normalized := strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	m := summaryPattern.FindStringSubmatch(normalized)
	if m == nil {
		return "", false, fmt.Errorf("summary does not match grammar: %q", s)
	}
	category := strings.TrimSpace(m[1])
	if category == "" {
		return "", false, fmt.Errorf("summary has empty category: %q", s)
	}
	return strings.ToLower(category), m[2] == "true", nil
}
