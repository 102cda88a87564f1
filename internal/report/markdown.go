package report

import (
	"fmt"
	"strings"
)

// Markdown 渲染完整报告。
func (r *Report) Markdown() string {
	var b strings.Builder
	title := r.FileName
	if title == "" {
		title = r.Category
	}
	fmt.Fprintf(&b, "# Data Report: %s\n\n", safeVal(title))
	fmt.Fprintf(&b, "- **Category**: %s\n", r.Category)
	fmt.Fprintf(&b, "- **Database**: %s\n", r.Database)
	fmt.Fprintf(&b, "- **Generated**: %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("## Shape\n\n")
	fmt.Fprintf(&b, "%d rows × %d columns\n\n", r.Rows, r.Cols)

	b.WriteString("## Schema\n\n")
	b.WriteString("| Column | Type | Non-null | Distinct | Nulls |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, c := range r.Columns {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d |\n", safeVal(c.Name), c.Kind, c.NonNull, c.Distinct, c.Nulls)
	}
	b.WriteString("\n")

	b.WriteString("## Missing Values\n\n")
	if r.TotalNulls == 0 {
		b.WriteString("No missing values.\n\n")
	} else {
		fmt.Fprintf(&b, "Total: %d\n\n", r.TotalNulls)
		for _, c := range r.Columns {
			if c.Nulls > 0 {
				fmt.Fprintf(&b, "- `%s`: %d\n", c.Name, c.Nulls)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Primary Key\n\n")
	fmt.Fprintf(&b, "`%s`\n\n", r.PrimaryKey)

	var numeric []ColumnSummary
	for _, c := range r.Columns {
		if c.numeric() {
			numeric = append(numeric, c)
		}
	}
	if len(numeric) > 0 {
		b.WriteString("## Numeric Columns\n\n")
		b.WriteString("| Column | Min | Max | Mean | Std |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, c := range numeric {
			fmt.Fprintf(&b, "| %s | %.4g | %.4g | %.4g | %.4g |\n", safeVal(c.Name), c.Min, c.Max, c.Mean, c.Std)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Anomalies\n\n")
	writeList(&b, r.Anomalies, "No anomalies detected.")

	b.WriteString("## Derived vs Raw Columns\n\n")
	if len(r.DerivedColumns) == 0 {
		fmt.Fprintf(&b, "All %d columns appear to be raw input.\n\n", len(r.RawColumns))
	} else {
		fmt.Fprintf(&b, "Derived features: %s. Raw input: %s.\n\n", codeList(r.DerivedColumns), codeList(r.RawColumns))
	}

	b.WriteString("## Suggested Features\n\n")
	writeList(&b, r.Suggestions, "No additional derived features suggested.")

	if r.AnalystNotes != "" {
		b.WriteString("## Analyst Notes\n\n")
		b.WriteString(r.AnalystNotes)
		b.WriteString("\n")
	}
	return b.String()
}

func writeList(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		b.WriteString(empty + "\n\n")
		return
	}
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
	b.WriteString("\n")
}

func codeList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "`" + it + "`"
	}
	return strings.Join(quoted, ", ")
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
