// Package repository defines the store-agnostic repository contract used by catalog code.
//
// Reads execute immediately. Writes are staged with Add, Update and Remove and only reach
// the store when SaveAll is called, which makes every repository instance a small unit of
// work that must not be shared between goroutines.
package repository

import (
	"context"
	"errors"

	"github.com/nimburion/catalog/pkg/specification"
)

// Entity is anything with an integer identity, unique within its collection.
type Entity interface {
	GetID() int64
}

// Partitioned is implemented by entities that carry a partition key. The key is set at
// creation and never changes afterwards.
type Partitioned interface {
	GetPartitionKey() string
}

// PartitionKeyOf returns the partition key of entity, if it exposes a non-empty one.
func PartitionKeyOf(entity any) (string, bool) {
	p, ok := entity.(Partitioned)
	if !ok {
		return "", false
	}
	key := p.GetPartitionKey()
	return key, key != ""
}

// Repository is the storage contract for entities of type T.
type Repository[T Entity] interface {
	// Add stages entity for insertion.
	Add(entity T)
	// Update stages entity for replacement. It fails with ErrPartitionKeyImmutable when the
	// entity was read through this repository with a different partition key.
	Update(entity T) error
	// Remove stages entity for deletion.
	Remove(entity T)

	// GetByID looks an entity up across partitions. Absence is reported as ok=false.
	GetByID(ctx context.Context, id int64) (entity T, ok bool, err error)
	// GetWithSpec returns the first entity matching spec.
	GetWithSpec(ctx context.Context, spec *specification.Specification[T]) (entity T, ok bool, err error)
	// List returns entities matching spec, ordered and paged.
	List(ctx context.Context, spec *specification.Specification[T]) ([]T, error)
	// Count returns the number of entities matching spec, ignoring ordering and paging.
	Count(ctx context.Context, spec *specification.Specification[T]) (int64, error)
	// Exists reports whether an entity with id exists.
	Exists(ctx context.Context, id int64) (bool, error)
	// ListAll returns every entity ordered by id.
	ListAll(ctx context.Context) ([]T, error)

	// SaveAll flushes staged inserts, then updates, then deletes. It reports whether at
	// least one write was executed. Staged writes are cleared whether or not it succeeds.
	SaveAll(ctx context.Context) (bool, error)
}

// ErrProjectionUnsupported is returned by a ColumnLister that cannot evaluate a projection
// server-side. ListProjected then projects client-side.
var ErrProjectionUnsupported = errors.New("projection not supported by store")

// ColumnLister is implemented by repositories that can fetch a single stored field directly.
// Values are returned in result order; distinct is applied when the specification asks for it.
type ColumnLister[T Entity] interface {
	ListColumn(ctx context.Context, spec *specification.Specification[T], field string) ([]any, error)
}

// ListProjected lists entities matching projection and maps them through its selector.
func ListProjected[T Entity, R comparable](ctx context.Context, repo Repository[T], projection *specification.Projection[T, R]) ([]R, error) {
	if projection == nil || projection.Select == nil {
		return nil, errors.New("projection selector is required")
	}

	if lister, ok := repo.(ColumnLister[T]); ok && projection.Field != "" {
		values, err := lister.ListColumn(ctx, projection.Specification, projection.Field)
		switch {
		case err == nil:
			if out, ok := columnValues[R](values); ok {
				return out, nil
			}
		case !errors.Is(err, ErrProjectionUnsupported):
			return nil, err
		}
	}

	entities, err := repo.List(ctx, projection.Specification)
	if err != nil {
		return nil, err
	}
	return projection.Apply(entities), nil
}

func columnValues[R comparable](values []any) ([]R, bool) {
	out := make([]R, 0, len(values))
	for _, v := range values {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		r, ok := v.(R)
		if !ok {
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}
