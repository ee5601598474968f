// Package document evaluates specifications against partitioned document stores and
// provides a staged-write repository on top of them.
package document

import (
	"context"
	"errors"

	"github.com/nimburion/catalog/pkg/specification"
)

// Field names every stored document carries.
const (
	IDField           = "id"
	PartitionKeyField = "partition_key"
)

// ErrDocumentNotFound is returned by Store.Delete when no document matches the key.
var ErrDocumentNotFound = errors.New("document not found")

// Document is a flat field/value view of a stored entity.
type Document map[string]any

// Key addresses a single document.
type Key struct {
	ID           int64
	PartitionKey string
}

// Query is a specification lowered for document stores.
type Query struct {
	Filter specification.Node
	Order  specification.Order
	Skip   int
	Take   int
	Paged  bool
}

// Store is the document store contract. Reads span every partition.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Find returns matching documents, ordered and paged as q requests.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	// Count returns the number of documents matching filter.
	Count(ctx context.Context, collection string, filter specification.Node) (int64, error)
	// FindByID looks a document up by id in any partition.
	FindByID(ctx context.Context, collection string, id int64) (Document, bool, error)
	// Upsert inserts or replaces the document at key.
	Upsert(ctx context.Context, collection string, key Key, doc Document) error
	// Delete removes the document at key, returning ErrDocumentNotFound if there is none.
	Delete(ctx context.Context, collection string, key Key) error
}
