package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/internal/report"
	"datapilot-go/internal/transform"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/tasks"

	"github.com/google/uuid"
)

// Transformer 清洗并派生数据集。
type Transformer interface {
	Transform(ctx context.Context, ds *model.Dataset, category string, required []string) (*model.Dataset, error)
}

// ReportGenerator 生成质量报告，false 表示无法生成。
type ReportGenerator interface {
	Generate(ctx context.Context, ds *model.Dataset, category, database string) (*report.Report, bool)
}

// IndexBuilder 为一个文件建立行向量索引，返回索引的行数。
type IndexBuilder interface {
	Build(ctx context.Context, fileName, category string, ds *model.Dataset) (int, error)
}

// Locker 是文件级互斥锁。
type Locker interface {
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
}

// Archiver 把产物上传到对象存储。
type Archiver interface {
	UploadFile(ctx context.Context, objectName, filePath, contentType string) error
}

// Processor 封装了文件处理的所有依赖和逻辑：编排、清洗、报告、索引。
type Processor struct {
	orchestrator *Orchestrator
	validator    *Validator
	transformer  Transformer
	reports      ReportGenerator
	index        IndexBuilder
	archive      Archiver
	locks        Locker
	layout       Layout
	lockTTL      time.Duration
}

// NewProcessor 创建一个新的 Processor 实例。archive 与 locks 可以为 nil。
func NewProcessor(
	orchestrator *Orchestrator,
	validator *Validator,
	transformer Transformer,
	reports ReportGenerator,
	index IndexBuilder,
	archive Archiver,
	locks Locker,
	layout Layout,
	lockTTL time.Duration,
) *Processor {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Processor{
		orchestrator: orchestrator,
		validator:    validator,
		transformer:  transformer,
		reports:      reports,
		index:        index,
		archive:      archive,
		locks:        locks,
		layout:       layout,
		lockTTL:      lockTTL,
	}
}

// Ingest 同步处理一个暂存区中的文件。返回的结果在失败时也带有完整的 Logs。
func (p *Processor) Ingest(ctx context.Context, filePath, database string) (*model.PipelineResult, error) {
	fileName := filepath.Base(filePath)
	trail := NewTrail()
	result := &model.PipelineResult{FileName: fileName, Database: database}
	err := p.ingest(ctx, filePath, database, trail, result)
	result.Logs = trail.Lines()
	if err != nil {
		log.Errorf("[Processor] 处理文件失败, FileName: %s, Error: %v", fileName, err)
		return result, err
	}
	log.Infof("[Processor] 文件处理完成, FileName: %s, Category: %s, Valid: %t", fileName, result.Category, result.Valid)
	return result, nil
}

func (p *Processor) ingest(ctx context.Context, filePath, database string, trail *Trail, result *model.PipelineResult) error {
	fileName := result.FileName

	if p.locks != nil {
		owner := uuid.New().String()
		ok, err := p.locks.Acquire(ctx, fileName, owner, p.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire lock for %s: %w", fileName, err)
		}
		if !ok {
			trail.Add("%s 正在被另一条管道处理", fileName)
			return fmt.Errorf("%w: %s", ErrFileBusy, fileName)
		}
		defer func() {
			if err := p.locks.Release(context.Background(), fileName, owner); err != nil {
				log.Warnf("[Processor] 释放文件锁失败, FileName: %s, Error: %v", fileName, err)
			}
		}()
	}

	// 1. 编排：分类、校验、主键、入库、移动、日志
	out, err := p.orchestrator.Run(ctx, filePath, database, trail)
	if err != nil {
		return err
	}
	rec := out.Record
	result.Category = rec.Category
	result.Valid = rec.Valid
	result.Strategy = out.Strategy
	result.PrimaryKey = rec.PrimaryKey
	result.Inserted = out.Inserted
	result.Skipped = out.Skipped
	result.OrganizedPath = out.Destination
	if !rec.Valid {
		trail.Add("schema 校验未通过，跳过清洗、报告与索引")
		return nil
	}

	// 2. 清洗
	required, err := p.validator.RequiredColumns(ctx, database, rec.Category)
	if err != nil {
		return err
	}
	cleaned, err := p.transformer.Transform(ctx, out.Dataset, rec.Category, required)
	if err != nil {
		trail.Add("清洗失败: %v", err)
		return err
	}
	transformedPath := p.layout.TransformedPath(fileName)
	if err := transform.WriteCSV(transformedPath, cleaned); err != nil {
		trail.Add("写出清洗结果失败: %v", err)
		return err
	}
	result.TransformedPath = transformedPath
	trail.Add("清洗完成: %d 行, %d 列 -> %s", len(cleaned.Rows), len(cleaned.Columns), transformedPath)
	p.upload(ctx, TransformedObject(fileName), transformedPath, "text/csv", trail)

	// 3. 报告
	rep, ok := p.reports.Generate(ctx, cleaned, rec.Category, database)
	if !ok {
		trail.Add("报告生成失败")
		return fmt.Errorf("%w: %s", ErrReportUnavailable, fileName)
	}
	rep.FileName = fileName
	reportPath := p.layout.ReportPath(fileName)
	if err := os.WriteFile(reportPath, []byte(rep.Markdown()), 0o644); err != nil {
		trail.Add("写出报告失败: %v", err)
		return err
	}
	result.ReportPath = reportPath
	trail.Add("报告已生成: %s", reportPath)
	if p.upload(ctx, ReportObject(fileName), reportPath, "text/markdown", trail) {
		result.ReportObject = ReportObject(fileName)
	}

	// 4. 向量索引
	if p.index != nil {
		n, err := p.index.Build(ctx, fileName, rec.Category, cleaned)
		if err != nil {
			trail.Add("建立向量索引失败: %v", err)
			return err
		}
		result.IndexedRows = n
		trail.Add("向量索引完成: %d 行", n)
	}
	return nil
}

// upload 归档失败不影响本次处理结果。
func (p *Processor) upload(ctx context.Context, objectName, path, contentType string, trail *Trail) bool {
	if p.archive == nil {
		return false
	}
	if err := p.archive.UploadFile(ctx, objectName, path, contentType); err != nil {
		trail.Add("归档 %s 失败: %v", objectName, err)
		return false
	}
	trail.Add("已归档: %s", objectName)
	return true
}

// Process 实现 Kafka 消费者的 TaskProcessor。重试无意义的错误返回 nil，让消费者直接提交。
func (p *Processor) Process(ctx context.Context, task tasks.IngestionTask) error {
	log.Infof("[Processor] 开始处理入库任务, TaskID: %s, FileName: %s", task.TaskID, task.FileName)
	_, err := p.Ingest(ctx, task.FilePath, task.Database)
	if err != nil && permanent(err) {
		log.Warnf("[Processor] 任务无法重试，放弃, TaskID: %s, Error: %v", task.TaskID, err)
		return nil
	}
	return err
}

func permanent(err error) bool {
	for _, target := range []error{
		ErrUnsupportedFormat,
		ErrUnclassified,
		ErrSourceMissing,
		ErrUnsafeDestination,
		ErrNoColumns,
		model.ErrEmptyDataset,
		model.ErrMalformedDataset,
		transform.ErrMissingColumns,
		transform.ErrRowShape,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
