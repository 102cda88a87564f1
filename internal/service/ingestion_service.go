// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"datapilot-go/internal/model"
	"datapilot-go/internal/pipeline"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/tasks"

	"github.com/google/uuid"
)

// ErrInvalidUpload 上传请求缺少文件名或文件内容。
var ErrInvalidUpload = errors.New("invalid upload")

// Ingestor 是同步处理一个暂存文件的管道入口，由 pipeline.Processor 实现。
type Ingestor interface {
	Ingest(ctx context.Context, filePath, database string) (*model.PipelineResult, error)
}

// TaskProducer 把入库任务投递到消息队列。
type TaskProducer func(ctx context.Context, task tasks.IngestionTask) error

// IngestionService 接口定义了文件上传与入库相关的业务操作。
type IngestionService interface {
	// Ingest 暂存上传内容并同步跑完整条管道。
	Ingest(ctx context.Context, fileName string, content io.Reader, database string) (*model.PipelineResult, error)
	// Enqueue 暂存上传内容并投递异步任务，返回任务 ID。
	Enqueue(ctx context.Context, fileName string, content io.Reader, database string) (string, error)
	// EnqueueLocalFile 把本地文件复制到暂存区后投递异步任务。
	EnqueueLocalFile(ctx context.Context, path, database string) (string, error)
}

type ingestionService struct {
	ingestor        Ingestor
	produce         TaskProducer
	layout          pipeline.Layout
	defaultDatabase string
}

// NewIngestionService 创建一个新的 IngestionService 实例。produce 为 nil 时不支持异步上传。
func NewIngestionService(ingestor Ingestor, produce TaskProducer, layout pipeline.Layout, defaultDatabase string) IngestionService {
	return &ingestionService{
		ingestor:        ingestor,
		produce:         produce,
		layout:          layout,
		defaultDatabase: defaultDatabase,
	}
}

func (s *ingestionService) Ingest(ctx context.Context, fileName string, content io.Reader, database string) (*model.PipelineResult, error) {
	database = s.database(database)
	staged, err := s.stage(fileName, content)
	if err != nil {
		return nil, err
	}
	return s.ingestor.Ingest(ctx, staged, database)
}

func (s *ingestionService) Enqueue(ctx context.Context, fileName string, content io.Reader, database string) (string, error) {
	if s.produce == nil {
		return "", errors.New("async ingestion is not configured")
	}
	database = s.database(database)
	staged, err := s.stage(fileName, content)
	if err != nil {
		return "", err
	}
	task := tasks.IngestionTask{
		TaskID:   uuid.New().String(),
		FileName: filepath.Base(staged),
		FilePath: staged,
		Database: database,
	}
	if err := s.produce(ctx, task); err != nil {
		log.Errorf("[IngestionService] 投递入库任务失败, FileName: %s, Error: %v", task.FileName, err)
		return "", fmt.Errorf("enqueue %s: %w", task.FileName, err)
	}
	log.Infof("[IngestionService] 已投递入库任务, TaskID: %s, FileName: %s, Database: %s", task.TaskID, task.FileName, database)
	return task.TaskID, nil
}

func (s *ingestionService) EnqueueLocalFile(ctx context.Context, path, database string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.Enqueue(ctx, filepath.Base(path), f, database)
}

func (s *ingestionService) database(database string) string {
	database = strings.TrimSpace(database)
	if database == "" {
		return s.defaultDatabase
	}
	return database
}

// stage 先写临时文件再 rename，其他管道不会读到写了一半的文件。
func (s *ingestionService) stage(fileName string, content io.Reader) (string, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) || content == nil {
		return "", ErrInvalidUpload
	}
	if !pipeline.SupportedExtension(fileName) {
		return "", fmt.Errorf("%w: %s", pipeline.ErrUnsupportedFormat, fileName)
	}
	if err := os.MkdirAll(s.layout.StagingDir(), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.layout.StagingDir(), ".upload-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	dst := s.layout.StagingPath(fileName)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	log.Infof("[IngestionService] 文件已暂存: %s", dst)
	return dst, nil
}
