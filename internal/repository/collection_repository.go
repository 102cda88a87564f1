package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"datapilot-go/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionRepository 是按 (database, category) 分集合的文档存储。
type CollectionRepository interface {
	// FindByKey 按主键值查找一行，found=false 表示不存在。
	FindByKey(ctx context.Context, database, collection, key string, value any) (model.Row, bool, error)
	// Insert 无条件插入一行（用于缺少主键的行）。
	Insert(ctx context.Context, database, collection string, columns []string, row model.Row) error
	// ReplaceByKey 以主键为条件整行覆盖，不存在则插入；并发写入时后写者胜出。
	ReplaceByKey(ctx context.Context, database, collection, key string, value any, columns []string, row model.Row) error
	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, database string) ([]string, error)
}

type mongoCollectionRepository struct {
	client *mongo.Client
}

// NewCollectionRepository 创建基于 MongoDB 的 CollectionRepository。
func NewCollectionRepository(client *mongo.Client) CollectionRepository {
	return &mongoCollectionRepository{client: client}
}

var systemDatabases = map[string]struct{}{"admin": {}, "config": {}, "local": {}}

func (r *mongoCollectionRepository) coll(database, collection string) *mongo.Collection {
	return r.client.Database(database).Collection(collection)
}

func (r *mongoCollectionRepository) FindByKey(ctx context.Context, database, collection, key string, value any) (model.Row, bool, error) {
	var doc bson.M
	err := r.coll(database, collection).FindOne(ctx, bson.D{{Key: key, Value: value}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find %s.%s by %s: %w", database, collection, key, err)
	}
	delete(doc, "_id")
	row := make(model.Row, len(doc))
	for k, v := range doc {
		row[k] = fromBSON(v)
	}
	return row, true, nil
}

func (r *mongoCollectionRepository) Insert(ctx context.Context, database, collection string, columns []string, row model.Row) error {
	if _, err := r.coll(database, collection).InsertOne(ctx, toDocument(columns, row)); err != nil {
		return fmt.Errorf("insert into %s.%s: %w", database, collection, err)
	}
	return nil
}

func (r *mongoCollectionRepository) ReplaceByKey(ctx context.Context, database, collection, key string, value any, columns []string, row model.Row) error {
	_, err := r.coll(database, collection).ReplaceOne(ctx,
		bson.D{{Key: key, Value: value}},
		toDocument(columns, row),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace in %s.%s by %s: %w", database, collection, key, err)
	}
	return nil
}

func (r *mongoCollectionRepository) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := r.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, sys := systemDatabases[n]; !sys {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *mongoCollectionRepository) ListCollections(ctx context.Context, database string) ([]string, error) {
	names, err := r.client.Database(database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// toDocument 按列头顺序构造 bson.D，保持字段顺序稳定。
func toDocument(columns []string, row model.Row) bson.D {
	doc := make(bson.D, 0, len(columns))
	for _, c := range columns {
		doc = append(doc, bson.E{Key: c, Value: row[c]})
	}
	return doc
}

func fromBSON(v any) any {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case int32:
		return int64(val)
	default:
		return val
	}
}
