package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Mover 把暂存区的文件移动到 organized/<category>/ 下。
type Mover struct {
	layout Layout
}

// NewMover 创建 Mover。
func NewMover(layout Layout) *Mover {
	return &Mover{layout: layout}
}

// Move 源文件不存在时返回 ErrSourceMissing，绝不静默跳过。
// 目标会落到 organized 目录之外时返回 ErrUnsafeDestination，源文件保持不动。
func (m *Mover) Move(source, category, fileName string) (string, error) {
	info, err := os.Stat(source)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, source)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrSourceMissing, source)
	}

	dest, err := m.layout.SafeOrganizedPath(category, fileName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(source, dest); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", err
		}
		// 跨卷时退化为 copy + delete
		if err := copyFile(source, dest, info.Mode()); err != nil {
			return "", err
		}
		if err := os.Remove(source); err != nil {
			return "", err
		}
	}
	return dest, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
