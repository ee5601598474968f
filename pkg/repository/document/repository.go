package document

import (
	"context"
	"errors"

	"github.com/spf13/cast"

	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/observability/metrics"
	"github.com/nimburion/catalog/pkg/observability/tracing"
	"github.com/nimburion/catalog/pkg/repository"
	"github.com/nimburion/catalog/pkg/specification"
)

// DefaultFallbackPartitionKey is used for entities that carry no partition key.
const DefaultFallbackPartitionKey = "_global"

// Config configures a document Repository.
type Config struct {
	Collection string
	// FallbackPartitionKey is written for entities without a partition key. Such writes
	// are logged and counted as degraded.
	FallbackPartitionKey string
	Logger               logger.Logger
	Metrics              *metrics.RepositoryMetrics
}

// Repository implements repository.Repository over a document Store.
// Projections and distinct are applied client-side.
type Repository[T repository.Entity] struct {
	store     Store
	codec     Codec[T]
	evaluator Evaluator[T]
	cfg       Config
	pending   repository.Pending[T]
	tracker   *repository.PartitionTracker
	inst      *repository.Instrumentation
}

// NewRepository creates a repository for cfg.Collection on store.
func NewRepository[T repository.Entity](store Store, cfg Config) (*Repository[T], error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("collection name is required")
	}
	if cfg.FallbackPartitionKey == "" {
		cfg.FallbackPartitionKey = DefaultFallbackPartitionKey
	}
	return &Repository[T]{
		store:   store,
		cfg:     cfg,
		tracker: repository.NewPartitionTracker(),
		inst:    repository.NewInstrumentation(store.Name(), store.Name(), cfg.Collection, cfg.Logger, cfg.Metrics),
	}, nil
}

// Add stages entity for insertion.
func (r *Repository[T]) Add(entity T) {
	r.pending.Add(entity)
}

// Update stages entity for replacement.
func (r *Repository[T]) Update(entity T) error {
	if err := r.tracker.Verify(entity); err != nil {
		r.inst.Logger.Warn("rejected partition key change", "entity_id", entity.GetID(), "error", err)
		return err
	}
	r.pending.Update(entity)
	return nil
}

// Remove stages entity for deletion.
func (r *Repository[T]) Remove(entity T) {
	r.pending.Remove(entity)
}

// GetByID looks the entity up across partitions.
func (r *Repository[T]) GetByID(ctx context.Context, id int64) (T, bool, error) {
	var (
		entity T
		found  bool
	)
	err := r.inst.Observe(ctx, tracing.SpanOperationGet, func(ctx context.Context) error {
		doc, ok, err := r.store.FindByID(ctx, r.cfg.Collection, id)
		if err != nil {
			return repository.WrapStoreError("get", err)
		}
		if !ok {
			return nil
		}
		entity, err = r.decode(doc)
		found = err == nil
		return err
	})
	return entity, found, err
}

// GetWithSpec returns the first entity matching spec.
func (r *Repository[T]) GetWithSpec(ctx context.Context, spec *specification.Specification[T]) (T, bool, error) {
	entities, err := r.find(ctx, tracing.SpanOperationGet, r.evaluator.FirstQuery(spec))
	if err != nil || len(entities) == 0 {
		var zero T
		return zero, false, err
	}
	return entities[0], true, nil
}

// List returns entities matching spec.
func (r *Repository[T]) List(ctx context.Context, spec *specification.Specification[T]) ([]T, error) {
	return r.find(ctx, tracing.SpanOperationQuery, r.evaluator.Query(spec))
}

// ListAll returns every entity ordered by id.
func (r *Repository[T]) ListAll(ctx context.Context) ([]T, error) {
	return r.List(ctx, nil)
}

// Count returns the number of entities matching spec's criteria.
func (r *Repository[T]) Count(ctx context.Context, spec *specification.Specification[T]) (int64, error) {
	var count int64
	err := r.inst.Observe(ctx, tracing.SpanOperationCount, func(ctx context.Context) error {
		var err error
		count, err = r.store.Count(ctx, r.cfg.Collection, r.evaluator.CountQuery(spec))
		return repository.WrapStoreError("count", err)
	})
	return count, err
}

// Exists reports whether an entity with id exists in any partition.
func (r *Repository[T]) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.inst.Observe(ctx, tracing.SpanOperationGet, func(ctx context.Context) error {
		var err error
		_, found, err = r.store.FindByID(ctx, r.cfg.Collection, id)
		return repository.WrapStoreError("exists", err)
	})
	return found, err
}

// SaveAll upserts staged adds, then staged updates, then deletes staged removals.
// Deleting a missing document is not an error and does not count as a write.
func (r *Repository[T]) SaveAll(ctx context.Context) (bool, error) {
	adds, updates, deletes := r.pending.Drain()
	if len(adds)+len(updates)+len(deletes) == 0 {
		return false, nil
	}

	executed := false
	err := r.inst.Observe(ctx, tracing.SpanOperationSaveAll, func(ctx context.Context) error {
		if err := r.verifyAdds(ctx, adds); err != nil {
			return err
		}
		if err := r.verifyPartitions(ctx, updates); err != nil {
			return err
		}
		for _, entity := range append(adds, updates...) {
			if err := r.upsert(ctx, entity); err != nil {
				return err
			}
			executed = true
		}
		for _, entity := range deletes {
			err := r.store.Delete(ctx, r.cfg.Collection, r.key(ctx, entity))
			switch {
			case errors.Is(err, ErrDocumentNotFound):
				r.inst.Logger.Debug("delete of missing document ignored", "entity_id", entity.GetID())
			case err != nil:
				return repository.WrapStoreError("delete", err)
			default:
				r.tracker.Forget(entity.GetID())
				executed = true
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return executed, nil
}

func (r *Repository[T]) find(ctx context.Context, op tracing.SpanOperation, q Query) ([]T, error) {
	var entities []T
	err := r.inst.Observe(ctx, op, func(ctx context.Context) error {
		docs, err := r.store.Find(ctx, r.cfg.Collection, q)
		if err != nil {
			return repository.WrapStoreError("find", err)
		}
		entities = make([]T, 0, len(docs))
		for _, doc := range docs {
			entity, err := r.decode(doc)
			if err != nil {
				return err
			}
			entities = append(entities, entity)
		}
		return nil
	})
	return entities, err
}

func (r *Repository[T]) decode(doc Document) (T, error) {
	entity, err := r.codec.Decode(doc)
	if err != nil {
		return entity, repository.WrapStoreError("decode", err)
	}
	r.tracker.Track(entity)
	return entity, nil
}

// verifyAdds rejects adds whose id is already stored under another partition key, so an id
// stays unique across the collection.
func (r *Repository[T]) verifyAdds(ctx context.Context, adds []T) error {
	for _, entity := range adds {
		doc, ok, err := r.store.FindByID(ctx, r.cfg.Collection, entity.GetID())
		if err != nil {
			return repository.WrapStoreError("verify", err)
		}
		if !ok {
			continue
		}
		stored := cast.ToString(doc[PartitionKeyField])
		if requested := r.partitionKey(entity); stored != requested {
			r.inst.Logger.Warn("rejected add of existing id", "entity_id", entity.GetID(), "stored_partition_key", stored)
			return repository.NewDuplicateIDError(entity.GetID(), stored, requested)
		}
	}
	return nil
}

// verifyPartitions checks untracked updates against the stored document before any write.
func (r *Repository[T]) verifyPartitions(ctx context.Context, updates []T) error {
	for _, entity := range updates {
		if _, tracked := r.tracker.Known(entity.GetID()); tracked {
			continue
		}
		doc, ok, err := r.store.FindByID(ctx, r.cfg.Collection, entity.GetID())
		if err != nil {
			return repository.WrapStoreError("verify", err)
		}
		if !ok {
			// Upserting an unknown document creates it, as an add would.
			continue
		}
		stored := cast.ToString(doc[PartitionKeyField])
		if err := repository.CheckPartitionKey(entity.GetID(), stored, r.partitionKey(entity)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository[T]) upsert(ctx context.Context, entity T) error {
	doc, err := r.codec.Encode(entity)
	if err != nil {
		return err
	}
	key := r.key(ctx, entity)
	doc[IDField] = key.ID
	doc[PartitionKeyField] = key.PartitionKey

	if err := r.store.Upsert(ctx, r.cfg.Collection, key, doc); err != nil {
		return repository.WrapStoreError("upsert", err)
	}
	r.tracker.Track(entity)
	return nil
}

// key resolves the storage key of entity, falling back to the configured partition.
func (r *Repository[T]) key(ctx context.Context, entity T) Key {
	pk, ok := repository.PartitionKeyOf(entity)
	if !ok {
		pk = r.cfg.FallbackPartitionKey
		r.inst.DegradedWrite(ctx, entity.GetID(), pk)
	}
	return Key{ID: entity.GetID(), PartitionKey: pk}
}

func (r *Repository[T]) partitionKey(entity T) string {
	if pk, ok := repository.PartitionKeyOf(entity); ok {
		return pk
	}
	return r.cfg.FallbackPartitionKey
}
