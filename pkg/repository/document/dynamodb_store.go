package document

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nimburion/catalog/pkg/specification"
)

// DynamoAdapter is the subset of the DynamoDB adapter used by DynamoStore.
type DynamoAdapter interface {
	Scan(ctx context.Context, input *awsdynamodb.ScanInput) ([]map[string]types.AttributeValue, error)
	ScanCount(ctx context.Context, input *awsdynamodb.ScanInput) (int64, error)
	PutItem(ctx context.Context, input *awsdynamodb.PutItemInput) (*awsdynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, input *awsdynamodb.DeleteItemInput) (*awsdynamodb.DeleteItemOutput, error)
}

// DynamoStore stores documents in DynamoDB tables keyed by partition_key (hash) and id (range).
// Reads are cross-partition scans; ordering and paging are applied after the scan because
// DynamoDB cannot order a scan.
type DynamoStore struct {
	adapter DynamoAdapter
}

// NewDynamoStore creates a store over adapter.
func NewDynamoStore(adapter DynamoAdapter) (*DynamoStore, error) {
	if adapter == nil {
		return nil, fmt.Errorf("dynamodb adapter is required")
	}
	return &DynamoStore{adapter: adapter}, nil
}

// Name returns "dynamodb".
func (s *DynamoStore) Name() string { return "dynamodb" }

// Find scans collection with q's filter and pages the result in memory.
func (s *DynamoStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	input, err := scanInput(collection, q.Filter)
	if err != nil {
		return nil, err
	}
	items, err := s.adapter.Scan(ctx, input)
	if err != nil {
		return nil, err
	}
	docs, err := unmarshalItems(items)
	if err != nil {
		return nil, err
	}
	return Page(docs, q), nil
}

// Count counts matching items with a Select=COUNT scan.
func (s *DynamoStore) Count(ctx context.Context, collection string, filter specification.Node) (int64, error) {
	input, err := scanInput(collection, filter)
	if err != nil {
		return 0, err
	}
	return s.adapter.ScanCount(ctx, input)
}

// FindByID scans every partition for id.
func (s *DynamoStore) FindByID(ctx context.Context, collection string, id int64) (Document, bool, error) {
	input, err := scanInput(collection, specification.Eq(IDField, id))
	if err != nil {
		return nil, false, err
	}
	items, err := s.adapter.Scan(ctx, input)
	if err != nil {
		return nil, false, err
	}
	if len(items) == 0 {
		return nil, false, nil
	}
	docs, err := unmarshalItems(items[:1])
	if err != nil {
		return nil, false, err
	}
	return docs[0], true, nil
}

// Upsert writes doc with PutItem, replacing any item with the same key.
func (s *DynamoStore) Upsert(ctx context.Context, collection string, key Key, doc Document) error {
	item, err := attributevalue.MarshalMap(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	item[IDField] = &types.AttributeValueMemberN{Value: strconv.FormatInt(key.ID, 10)}
	item[PartitionKeyField] = &types.AttributeValueMemberS{Value: key.PartitionKey}

	_, err = s.adapter.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(collection),
		Item:      item,
	})
	return err
}

// Delete removes the item at key. No previous attributes means there was no item.
func (s *DynamoStore) Delete(ctx context.Context, collection string, key Key) error {
	out, err := s.adapter.DeleteItem(ctx, &awsdynamodb.DeleteItemInput{
		TableName: aws.String(collection),
		Key: map[string]types.AttributeValue{
			PartitionKeyField: &types.AttributeValueMemberS{Value: key.PartitionKey},
			IDField:           &types.AttributeValueMemberN{Value: strconv.FormatInt(key.ID, 10)},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return err
	}
	if out == nil || len(out.Attributes) == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func unmarshalItems(items []map[string]types.AttributeValue) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		var doc map[string]any
		if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		docs = append(docs, Document(doc))
	}
	return docs, nil
}

func scanInput(table string, filter specification.Node) (*awsdynamodb.ScanInput, error) {
	input := &awsdynamodb.ScanInput{TableName: aws.String(table)}
	if filter == nil {
		return input, nil
	}
	expr, err := DynamoFilter(filter)
	if err != nil {
		return nil, err
	}
	input.FilterExpression = aws.String(expr.Expression)
	input.ExpressionAttributeNames = expr.Names
	if len(expr.Values) > 0 {
		input.ExpressionAttributeValues = expr.Values
	}
	return input, nil
}

// DynamoExpression is a filter expression with its placeholder maps.
type DynamoExpression struct {
	Expression string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

// DynamoFilter translates a specification node into a DynamoDB filter expression.
func DynamoFilter(node specification.Node) (DynamoExpression, error) {
	b := &dynamoBuilder{
		names:   map[string]string{},
		values:  map[string]types.AttributeValue{},
		aliases: map[string]string{},
	}
	expr, err := b.node(node)
	if err != nil {
		return DynamoExpression{}, err
	}
	return DynamoExpression{Expression: expr, Names: b.names, Values: b.values}, nil
}

type dynamoBuilder struct {
	names   map[string]string
	values  map[string]types.AttributeValue
	aliases map[string]string
}

func (b *dynamoBuilder) name(field string) string {
	if alias, ok := b.aliases[field]; ok {
		return alias
	}
	alias := fmt.Sprintf("#n%d", len(b.aliases))
	b.aliases[field] = alias
	b.names[alias] = field
	return alias
}

func (b *dynamoBuilder) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal filter value: %w", err)
	}
	placeholder := fmt.Sprintf(":v%d", len(b.values))
	b.values[placeholder] = av
	return placeholder, nil
}

// always and never are used for empty groups. Every item carries a partition key.
func (b *dynamoBuilder) always() string {
	return fmt.Sprintf("attribute_exists(%s)", b.name(PartitionKeyField))
}

func (b *dynamoBuilder) never() string {
	return fmt.Sprintf("attribute_not_exists(%s)", b.name(PartitionKeyField))
}

var dynamoOps = map[specification.Operator]string{
	specification.OpEq: "=",
	specification.OpGt: ">",
	specification.OpGe: ">=",
	specification.OpLt: "<",
	specification.OpLe: "<=",
}

func (b *dynamoBuilder) node(node specification.Node) (string, error) {
	switch n := node.(type) {
	case specification.Condition:
		return b.condition(n)
	case specification.And:
		if len(n.Children) == 0 {
			return b.always(), nil
		}
		return b.group(n.Children, " AND ")
	case specification.Or:
		if len(n.Children) == 0 {
			return b.never(), nil
		}
		return b.group(n.Children, " OR ")
	default:
		return "", fmt.Errorf("unsupported specification node %T", node)
	}
}

func (b *dynamoBuilder) group(children []specification.Node, sep string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := b.node(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *dynamoBuilder) condition(c specification.Condition) (string, error) {
	name := b.name(c.Field)
	if op, ok := dynamoOps[c.Op]; ok {
		v, err := b.value(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", name, op, v), nil
	}

	switch c.Op {
	case specification.OpNe:
		v, err := b.value(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(attribute_exists(%s) AND %s <> %s)", name, name, v), nil
	case specification.OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return "", fmt.Errorf("in condition on %s: expected []any, got %T", c.Field, c.Value)
		}
		if len(values) == 0 {
			return b.never(), nil
		}
		placeholders := make([]string, len(values))
		for i, raw := range values {
			v, err := b.value(raw)
			if err != nil {
				return "", err
			}
			placeholders[i] = v
		}
		return fmt.Sprintf("%s IN (%s)", name, strings.Join(placeholders, ", ")), nil
	case specification.OpContains:
		v, err := b.value(fmt.Sprint(c.Value))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contains(%s, %s)", name, v), nil
	default:
		return "", fmt.Errorf("unsupported operator %q on %s", c.Op, c.Field)
	}
}
