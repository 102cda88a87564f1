package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datapilot-go/internal/pipeline"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/storage"
)

// ErrReportNotFound 该文件还没有生成过报告。
var ErrReportNotFound = errors.New("report not found")

// ReportDownloadDTO 封装了报告下载链接所需的信息。
type ReportDownloadDTO struct {
	FileName    string `json:"fileName"`
	ReportName  string `json:"reportName"`
	DownloadURL string `json:"downloadUrl"`
	ExpiresAt   string `json:"expiresAt"`
}

// ReportService 为已生成的报告签发下载链接。
type ReportService interface {
	DownloadURL(ctx context.Context, fileName string) (*ReportDownloadDTO, error)
}

type reportService struct {
	store  storage.ObjectStore
	layout pipeline.Layout
	expiry time.Duration
}

// NewReportService 创建一个新的 ReportService 实例。
func NewReportService(store storage.ObjectStore, layout pipeline.Layout, expiry time.Duration) ReportService {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &reportService{store: store, layout: layout, expiry: expiry}
}

func (s *reportService) DownloadURL(ctx context.Context, fileName string) (*ReportDownloadDTO, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidUpload)
	}
	if _, err := os.Stat(s.layout.ReportPath(fileName)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, fileName)
	}
	objectName := pipeline.ReportObject(fileName)
	url, err := s.store.PresignedURL(ctx, objectName, s.expiry)
	if err != nil {
		log.Errorf("[ReportService] 生成下载链接失败, Object: %s, Error: %v", objectName, err)
		return nil, err
	}
	return &ReportDownloadDTO{
		FileName:    fileName,
		ReportName:  filepath.Base(objectName),
		DownloadURL: url,
		ExpiresAt:   time.Now().Add(s.expiry).Format("2006-01-02 15:04:05"),
	}, nil
}
