package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const bulkBatchSize = 500

// VectorStore 以源文件为单位存放行向量，支持整体替换与按文件的 kNN 检索。
type VectorStore struct {
	client *elasticsearch.Client
	index  string
}

// NewVectorStore 创建 VectorStore。
func NewVectorStore(client *elasticsearch.Client, index string) *VectorStore {
	return &VectorStore{client: client, index: index}
}

// ReplaceFile 先删除该文件的全部旧向量，再批量写入新向量，不做增量追加。
func (s *VectorStore) ReplaceFile(ctx context.Context, fileName string, docs []model.RowVectorDocument) error {
	if err := s.deleteFile(ctx, fileName); err != nil {
		return err
	}
	for start := 0; start < len(docs); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := s.bulkIndex(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	log.Infof("[VectorStore] 文件 %s 已写入 %d 条行向量", fileName, len(docs))
	return nil
}

func (s *VectorStore) deleteFile(ctx context.Context, fileName string) error {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"term": map[string]any{"file_name": fileName}},
	})
	if err != nil {
		return err
	}
	res, err := s.client.DeleteByQuery(
		[]string{s.index},
		bytes.NewReader(body),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
		s.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return fmt.Errorf("delete vectors of %s: %w", fileName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete vectors of %s: %s", fileName, res.String())
	}
	return nil
}

func (s *VectorStore) bulkIndex(ctx context.Context, docs []model.RowVectorDocument) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]any{"index": map[string]any{"_index": s.index, "_id": doc.VectorID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   s.index,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index: %s", res.String())
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error != nil {
				return fmt.Errorf("bulk index: %s: %s", result.Error.Type, result.Error.Reason)
			}
		}
	}
	return fmt.Errorf("bulk index reported errors")
}

// Nearest 返回该文件中与 vector 欧氏距离最近的 k 行文本，按距离升序。
func (s *VectorStore) Nearest(ctx context.Context, fileName string, vector []float32, k int) ([]string, error) {
	candidates := k * 10
	if candidates < 100 {
		candidates = 100
	}
	query := map[string]any{
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": candidates,
			"filter":         map[string]any{"term": map[string]any{"file_name": fileName}},
		},
		"_source": []string{"text", "row_id"},
		"size":    k,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[VectorStore] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Text string `json:"text"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	texts := make([]string, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		texts = append(texts, hit.Source.Text)
	}
	return texts, nil
}
