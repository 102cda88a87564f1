package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"datapilot-go/internal/model"
)

// Layout 描述工作目录下的各个区域，由进程入口创建后注入到各组件。
type Layout struct {
	Root string
}

// NewLayout 创建 Layout，root 为空时使用 ./data。
func NewLayout(root string) Layout {
	if root == "" {
		root = "./data"
	}
	return Layout{Root: root}
}

// Ensure 创建固定的区域目录；类别目录由 Mover 按需创建。
func (l Layout) Ensure() error {
	for _, dir := range []string{l.StagingDir(), l.OrganizedRoot(), l.TransformedDir(), l.ReportDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (l Layout) StagingDir() string     { return filepath.Join(l.Root, "staging") }
func (l Layout) OrganizedRoot() string  { return filepath.Join(l.Root, "organized") }
func (l Layout) TransformedDir() string { return filepath.Join(l.Root, "transformed") }
func (l Layout) ReportDir() string      { return filepath.Join(l.Root, "report") }

// StagingPath 上传文件的暂存位置。
func (l Layout) StagingPath(fileName string) string {
	return filepath.Join(l.StagingDir(), fileName)
}

// OrganizedPath 文件移动后的期望位置，也是移动后校验的依据。
func (l Layout) OrganizedPath(category, fileName string) string {
	return filepath.Join(l.OrganizedRoot(), category, fileName)
}

// SafeOrganizedPath 与 OrganizedPath 相同，但要求结果恰好位于 organized/<category>/ 下一层。
func (l Layout) SafeOrganizedPath(category, fileName string) (string, error) {
	if !model.ValidCategory(category) || fileName == "" || fileName != filepath.Base(fileName) || fileName == "." || fileName == ".." {
		return "", fmt.Errorf("%w: category=%q file=%q", ErrUnsafeDestination, category, fileName)
	}
	dest := l.OrganizedPath(category, fileName)
	rel, err := filepath.Rel(l.OrganizedRoot(), dest)
	if err != nil || rel != filepath.Join(category, fileName) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeDestination, dest)
	}
	return dest, nil
}

// TransformedPath 清洗后的 CSV：transformed_<base>.csv
func (l Layout) TransformedPath(fileName string) string {
	return filepath.Join(l.TransformedDir(), "transformed_"+BaseName(fileName)+".csv")
}

// ReportPath 报告文件：<base>.md
func (l Layout) ReportPath(fileName string) string {
	return filepath.Join(l.ReportDir(), BaseName(fileName)+".md")
}

// BaseName 去掉目录与扩展名。
func BaseName(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TransformedObject 清洗结果在对象存储中的名称。
func TransformedObject(fileName string) string {
	return "transformed/transformed_" + BaseName(fileName) + ".csv"
}

// ReportObject 报告在对象存储中的名称。
func ReportObject(fileName string) string {
	return "report/" + BaseName(fileName) + ".md"
}
