package service

import (
	"context"
	"fmt"
	"strings"

	"datapilot-go/internal/repository"
)

// CatalogService 列出文档库中的数据库与集合。
type CatalogService interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, database string) ([]string, error)
}

type catalogService struct {
	repo repository.CollectionRepository
}

// NewCatalogService 创建一个新的 CatalogService 实例。
func NewCatalogService(repo repository.CollectionRepository) CatalogService {
	return &catalogService{repo: repo}
}

func (s *catalogService) ListDatabases(ctx context.Context) ([]string, error) {
	return s.repo.ListDatabases(ctx)
}

func (s *catalogService) ListCollections(ctx context.Context, database string) ([]string, error) {
	database = strings.TrimSpace(database)
	if database == "" {
		return nil, fmt.Errorf("%w: database name is required", ErrInvalidSchema)
	}
	return s.repo.ListCollections(ctx, database)
}
