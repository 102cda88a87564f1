package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"datapilot-go/internal/model"
	"datapilot-go/internal/repository"
	"datapilot-go/pkg/log"
)

var (
	// ErrInvalidSchema 库名、类别或列清单不合法。
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrSchemaNotFound 该库中没有这个类别。
	ErrSchemaNotFound = errors.New("schema not found")
)

// SchemaService 接口定义了类别 schema 的管理操作。
type SchemaService interface {
	Save(ctx context.Context, dbName, category string, columns []string) (*model.SchemaRecord, error)
	Get(ctx context.Context, dbName, category string) (*model.SchemaRecord, error)
	// List dbName 为空时返回所有库的 schema。
	List(ctx context.Context, dbName string) ([]model.SchemaRecord, error)
	Delete(ctx context.Context, dbName, category string) error
	// SeedDefaults 只写入尚不存在的类别，返回新写入的数量。
	SeedDefaults(ctx context.Context, dbName string, defaults map[string][]string) (int, error)
}

type schemaService struct {
	repo repository.SchemaRepository
}

// NewSchemaService 创建一个新的 SchemaService 实例。
func NewSchemaService(repo repository.SchemaRepository) SchemaService {
	return &schemaService{repo: repo}
}

func (s *schemaService) Save(ctx context.Context, dbName, category string, columns []string) (*model.SchemaRecord, error) {
	record, err := buildSchema(dbName, category, columns)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, record); err != nil {
		return nil, err
	}
	log.Infof("[SchemaService] schema 已保存: %s/%s %v", record.DBName, record.Category, record.Columns)
	return record, nil
}

func (s *schemaService) Get(ctx context.Context, dbName, category string) (*model.SchemaRecord, error) {
	record, err := s.repo.Find(ctx, strings.TrimSpace(dbName), category)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrSchemaNotFound, dbName, model.NormalizeCategory(category))
	}
	return record, nil
}

func (s *schemaService) List(ctx context.Context, dbName string) ([]model.SchemaRecord, error) {
	dbName = strings.TrimSpace(dbName)
	if dbName == "" {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListByDB(ctx, dbName)
}

func (s *schemaService) Delete(ctx context.Context, dbName, category string) error {
	deleted, err := s.repo.Delete(ctx, strings.TrimSpace(dbName), category)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s/%s", ErrSchemaNotFound, dbName, model.NormalizeCategory(category))
	}
	log.Infof("[SchemaService] schema 已删除: %s/%s", dbName, model.NormalizeCategory(category))
	return nil
}

func (s *schemaService) SeedDefaults(ctx context.Context, dbName string, defaults map[string][]string) (int, error) {
	seeded := 0
	for category, columns := range defaults {
		existing, err := s.repo.Find(ctx, dbName, category)
		if err != nil {
			return seeded, err
		}
		if existing != nil {
			continue
		}
		if _, err := s.Save(ctx, dbName, category, columns); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// buildSchema 规范化并校验输入：列名去空白、去重后不能为空。
func buildSchema(dbName, category string, columns []string) (*model.SchemaRecord, error) {
	dbName = strings.TrimSpace(dbName)
	category = model.NormalizeCategory(category)
	if dbName == "" {
		return nil, fmt.Errorf("%w: db_name is required", ErrInvalidSchema)
	}
	if category == "" || category == model.Unclassified || !model.ValidCategory(category) {
		return nil, fmt.Errorf("%w: category %q is not allowed", ErrInvalidSchema, category)
	}
	seen := make(map[string]struct{}, len(columns))
	cleaned := make([]string, 0, len(columns))
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if c == "" {
			return nil, fmt.Errorf("%w: empty column name", ErrInvalidSchema)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, c)
		}
		seen[c] = struct{}{}
		cleaned = append(cleaned, c)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: at least one column is required", ErrInvalidSchema)
	}
	return &model.SchemaRecord{DBName: dbName, Category: category, Columns: cleaned}, nil
}
