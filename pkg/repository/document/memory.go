package document

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/nimburion/catalog/pkg/specification"
)

// MemoryStore is an in-process Store keyed by collection, partition and id.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[int64]Document
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[int64]Document)}
}

// Name returns "memory".
func (s *MemoryStore) Name() string { return "memory" }

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close is a no-op; the data lives as long as the store.
func (s *MemoryStore) Close() error { return nil }

// Find evaluates q against every partition.
func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for _, partition := range s.collections[collection] {
		for _, doc := range partition {
			if specification.Match(q.Filter, doc) {
				out = append(out, maps.Clone(doc))
			}
		}
	}
	return Page(out, q), nil
}

// Count counts matching documents across partitions.
func (s *MemoryStore) Count(ctx context.Context, collection string, filter specification.Node) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, partition := range s.collections[collection] {
		for _, doc := range partition {
			if specification.Match(filter, doc) {
				n++
			}
		}
	}
	return n, nil
}

// FindByID returns the first document with id in any partition.
func (s *MemoryStore) FindByID(ctx context.Context, collection string, id int64) (Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, partition := range s.collections[collection] {
		if doc, ok := partition[id]; ok {
			return maps.Clone(doc), true, nil
		}
	}
	return nil, false, nil
}

// Upsert stores a copy of doc at key.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, key Key, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions, ok := s.collections[collection]
	if !ok {
		partitions = make(map[string]map[int64]Document)
		s.collections[collection] = partitions
	}
	partition, ok := partitions[key.PartitionKey]
	if !ok {
		partition = make(map[int64]Document)
		partitions[key.PartitionKey] = partition
	}
	partition[key.ID] = maps.Clone(doc)
	return nil
}

// Delete removes the document at key.
func (s *MemoryStore) Delete(ctx context.Context, collection string, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partition := s.collections[collection][key.PartitionKey]
	if _, ok := partition[key.ID]; !ok {
		return ErrDocumentNotFound
	}
	delete(partition, key.ID)
	return nil
}

func sortDocuments(docs []Document, order specification.Order) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		c := specification.Compare(a[order.Field], b[order.Field])
		if order.Desc {
			c = -c
		}
		if c != 0 || order.Field == IDField {
			return c
		}
		return specification.Compare(a[IDField], b[IDField])
	})
}
