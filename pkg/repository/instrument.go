package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/observability/metrics"
	"github.com/nimburion/catalog/pkg/observability/tracing"
)

// Instrumentation wraps repository operations with a span, metrics and error logging.
type Instrumentation struct {
	Store      string
	System     string
	Collection string
	UnitOfWork string
	Logger     logger.Logger
	Metrics    *metrics.RepositoryMetrics
}

// NewInstrumentation creates instrumentation for one repository instance, tagging its
// logger with a fresh unit-of-work id. A nil log is replaced with a no-op logger.
func NewInstrumentation(store, system, collection string, log logger.Logger, m *metrics.RepositoryMetrics) *Instrumentation {
	if log == nil {
		log = logger.NewNop()
	}
	id := uuid.NewString()
	return &Instrumentation{
		Store:      store,
		System:     system,
		Collection: collection,
		UnitOfWork: id,
		Logger:     log.With("store", store, "collection", collection, "unit_of_work", id),
		Metrics:    m,
	}
}

// Observe runs fn under a database span and records its outcome.
func (in *Instrumentation) Observe(ctx context.Context, op tracing.SpanOperation, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartDatabaseSpan(ctx, op,
		tracing.WithCollection(in.Collection),
		tracing.WithDBSystem(in.System),
	)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	tracing.End(span, err)
	in.Metrics.Observe(in.Store, string(op), elapsed, err)

	log := in.Logger.WithContext(ctx)
	if err != nil {
		log.Error("repository operation failed", "operation", string(op), "duration", elapsed, "error", err)
		return err
	}
	log.Debug("repository operation completed", "operation", string(op), "duration", elapsed)
	return nil
}

// DegradedWrite logs and counts a write issued with the fallback partition key.
func (in *Instrumentation) DegradedWrite(ctx context.Context, id int64, fallback string) {
	in.Logger.WithContext(ctx).Warn("entity has no partition key, writing to fallback partition",
		"entity_id", id, "partition_key", fallback)
	in.Metrics.DegradedWrite(in.Store)
}
