package document

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nimburion/catalog/pkg/specification"
)

const mongoIDField = "_id"

// MongoAdapter is the subset of the MongoDB adapter used by MongoStore.
type MongoAdapter interface {
	Find(ctx context.Context, collection string, filter any, results any, opts ...*options.FindOptions) error
	FindOne(ctx context.Context, collection string, filter any, result any) error
	CountDocuments(ctx context.Context, collection string, filter any) (int64, error)
	ReplaceOne(ctx context.Context, collection string, filter, replacement any) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, collection string, filter any) (*mongo.DeleteResult, error)
}

// MongoStore stores documents in MongoDB. The entity id is the document _id, so lookups by
// id span partitions; the partition key is a regular field included in write filters.
type MongoStore struct {
	adapter MongoAdapter
}

// NewMongoStore creates a store over adapter.
func NewMongoStore(adapter MongoAdapter) (*MongoStore, error) {
	if adapter == nil {
		return nil, fmt.Errorf("mongodb adapter is required")
	}
	return &MongoStore{adapter: adapter}, nil
}

// Name returns "mongodb".
func (s *MongoStore) Name() string { return "mongodb" }

// Find runs q server-side, including ordering and paging.
func (s *MongoStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if q.Paged && q.Take == 0 {
		return []Document{}, nil
	}
	filter, err := MongoFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	direction := 1
	if q.Order.Desc {
		direction = -1
	}
	sort := bson.D{{Key: mongoField(q.Order.Field), Value: direction}}
	if q.Order.Field != IDField {
		sort = append(sort, bson.E{Key: mongoIDField, Value: 1})
	}
	opts := options.Find().SetSort(sort)
	if q.Paged {
		opts.SetSkip(int64(q.Skip)).SetLimit(int64(q.Take))
	}

	var raw []bson.M
	if err := s.adapter.Find(ctx, collection, filter, &raw, opts); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, fromMongo(m))
	}
	return docs, nil
}

// Count counts documents matching filter.
func (s *MongoStore) Count(ctx context.Context, collection string, filter specification.Node) (int64, error) {
	f, err := MongoFilter(filter)
	if err != nil {
		return 0, err
	}
	return s.adapter.CountDocuments(ctx, collection, f)
}

// FindByID looks a document up by _id.
func (s *MongoStore) FindByID(ctx context.Context, collection string, id int64) (Document, bool, error) {
	var m bson.M
	err := s.adapter.FindOne(ctx, collection, bson.D{{Key: mongoIDField, Value: id}}, &m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return fromMongo(m), true, nil
}

// Upsert replaces the document matching key, inserting it when absent.
func (s *MongoStore) Upsert(ctx context.Context, collection string, key Key, doc Document) error {
	_, err := s.adapter.ReplaceOne(ctx, collection, keyFilter(key), toMongo(doc))
	return err
}

// Delete removes the document matching key.
func (s *MongoStore) Delete(ctx context.Context, collection string, key Key) error {
	res, err := s.adapter.DeleteOne(ctx, collection, keyFilter(key))
	if err != nil {
		return err
	}
	if res == nil || res.DeletedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MongoFilter translates a specification node into a MongoDB filter document.
func MongoFilter(node specification.Node) (bson.M, error) {
	switch n := node.(type) {
	case nil:
		return bson.M{}, nil
	case specification.Condition:
		return mongoCondition(n)
	case specification.And:
		if len(n.Children) == 0 {
			return bson.M{}, nil
		}
		parts, err := mongoChildren(n.Children)
		if err != nil {
			return nil, err
		}
		return bson.M{"$and": parts}, nil
	case specification.Or:
		if len(n.Children) == 0 {
			return bson.M{mongoIDField: bson.M{"$in": bson.A{}}}, nil
		}
		parts, err := mongoChildren(n.Children)
		if err != nil {
			return nil, err
		}
		return bson.M{"$or": parts}, nil
	default:
		return nil, fmt.Errorf("unsupported specification node %T", node)
	}
}

func mongoChildren(children []specification.Node) (bson.A, error) {
	parts := make(bson.A, 0, len(children))
	for _, child := range children {
		f, err := MongoFilter(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}
	return parts, nil
}

var mongoOps = map[specification.Operator]string{
	specification.OpEq: "$eq",
	specification.OpGt: "$gt",
	specification.OpGe: "$gte",
	specification.OpLt: "$lt",
	specification.OpLe: "$lte",
}

func mongoCondition(c specification.Condition) (bson.M, error) {
	field := mongoField(c.Field)
	if op, ok := mongoOps[c.Op]; ok {
		return bson.M{field: bson.M{op: c.Value}}, nil
	}
	switch c.Op {
	case specification.OpNe:
		// $ne alone also matches documents without the field.
		return bson.M{field: bson.M{"$ne": c.Value, "$exists": true}}, nil
	case specification.OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("in condition on %s: expected []any, got %T", c.Field, c.Value)
		}
		return bson.M{field: bson.M{"$in": bson.A(values)}}, nil
	case specification.OpContains:
		pattern := regexp.QuoteMeta(fmt.Sprint(c.Value))
		return bson.M{field: bson.M{"$regex": pattern}}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q on %s", c.Op, c.Field)
	}
}

func mongoField(field string) string {
	if field == IDField {
		return mongoIDField
	}
	return field
}

func keyFilter(key Key) bson.D {
	return bson.D{
		{Key: mongoIDField, Value: key.ID},
		{Key: PartitionKeyField, Value: key.PartitionKey},
	}
}

func toMongo(doc Document) bson.M {
	m := make(bson.M, len(doc))
	for k, v := range doc {
		m[mongoField(k)] = v
	}
	return m
}

func fromMongo(m bson.M) Document {
	doc := make(Document, len(m))
	for k, v := range m {
		if k == mongoIDField {
			k = IDField
		}
		doc[k] = v
	}
	return doc
}
