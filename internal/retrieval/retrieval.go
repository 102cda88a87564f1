// Package retrieval 为每个源文件建立行级向量索引，并基于最近邻行回答自然语言问题。
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"datapilot-go/internal/model"
	"datapilot-go/internal/transform"
	"datapilot-go/pkg/embedding"
	"datapilot-go/pkg/log"
)

var (
	// ErrIndexNotFound 该文件没有建立过索引。
	ErrIndexNotFound = errors.New("index not found")
	// ErrDimensionMismatch 向量维度与索引不一致。
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// VectorStore 由 es.VectorStore 实现。
type VectorStore interface {
	ReplaceFile(ctx context.Context, fileName string, docs []model.RowVectorDocument) error
	Nearest(ctx context.Context, fileName string, vector []float32, k int) ([]string, error)
}

// Registry 记录哪些文件已经建立索引，由 repository.IndexedFileRepository 实现。
type Registry interface {
	Upsert(ctx context.Context, file *model.IndexedFile) error
	FindByFileName(ctx context.Context, fileName string) (*model.IndexedFile, error)
	List(ctx context.Context) ([]model.IndexedFile, error)
}

// RowText 按列头顺序把一行的单元格用空格拼接。
func RowText(columns []string, row model.Row) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = transform.FormatCell(row[c])
	}
	return strings.Join(parts, " ")
}

// Builder 为一个数据集建立索引，重复建立会整体替换旧索引。
type Builder struct {
	embedder embedding.Client
	store    VectorStore
	registry Registry
}

// NewBuilder 创建 Builder。
func NewBuilder(embedder embedding.Client, store VectorStore, registry Registry) *Builder {
	return &Builder{embedder: embedder, store: store, registry: registry}
}

// Build 返回写入的行数。
func (b *Builder) Build(ctx context.Context, fileName, category string, ds *model.Dataset) (int, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return 0, model.ErrEmptyDataset
	}
	texts := make([]string, len(ds.Rows))
	for i, row := range ds.Rows {
		texts[i] = RowText(ds.Columns, row)
	}

	vectors, err := b.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed rows of %s: %w", fileName, err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d rows", len(vectors), len(texts))
	}
	dims := len(vectors[0])
	docs := make([]model.RowVectorDocument, len(texts))
	for i, v := range vectors {
		if len(v) != dims || dims == 0 {
			return 0, fmt.Errorf("%w: row %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dims)
		}
		docs[i] = model.RowVectorDocument{
			VectorID:     fmt.Sprintf("%s_%d", fileName, i),
			FileName:     fileName,
			RowID:        i,
			Text:         texts[i],
			Vector:       v,
			ModelVersion: b.embedder.Model(),
		}
	}

	if err := b.store.ReplaceFile(ctx, fileName, docs); err != nil {
		return 0, err
	}
	if err := b.registry.Upsert(ctx, &model.IndexedFile{
		FileName:     fileName,
		Category:     category,
		Rows:         len(docs),
		Dimensions:   dims,
		ModelVersion: b.embedder.Model(),
	}); err != nil {
		return 0, fmt.Errorf("register index of %s: %w", fileName, err)
	}
	log.Infof("[RetrievalBuilder] 文件 %s 索引完成: %d 行, dims=%d", fileName, len(docs), dims)
	return len(docs), nil
}
