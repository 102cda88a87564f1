package service

import (
	"context"
	"strings"

	"datapilot-go/internal/repository"
)

// LogService 以纯文本形式读取只追加的入库日志。
type LogService interface {
	Text(ctx context.Context) (string, error)
}

type logService struct {
	repo repository.IngestionLogRepository
}

// NewLogService 创建一个新的 LogService 实例。
func NewLogService(repo repository.IngestionLogRepository) LogService {
	return &logService{repo: repo}
}

// Text 每条记录一行，按到达顺序。
func (s *logService) Text(ctx context.Context) (string, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}
	return b.String(), nil
}
