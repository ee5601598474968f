package catalog

import (
	"context"
	"fmt"

	"github.com/nimburion/catalog/pkg/config"
	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/observability/metrics"
	"github.com/nimburion/catalog/pkg/repository"
	"github.com/nimburion/catalog/pkg/repository/document"
	"github.com/nimburion/catalog/pkg/repository/relational"
	"github.com/nimburion/catalog/pkg/store"
	"github.com/nimburion/catalog/pkg/store/dynamodb"
	"github.com/nimburion/catalog/pkg/store/mongodb"
	"github.com/nimburion/catalog/pkg/store/mysql"
	"github.com/nimburion/catalog/pkg/store/postgres"
)

// RepositoryFactory returns a fresh product repository. Each repository is a unit of work,
// so callers take a new one per operation instead of sharing one.
type RepositoryFactory func() (repository.Repository[Product], error)

// NewRepositoryFactory binds the product repository to an opened storage adapter.
// Relational adapters store products in the table named by cfg.Collection; document
// adapters use it as the collection name.
func NewRepositoryFactory(ctx context.Context, adapter store.Adapter, cfg config.DatabaseConfig, log logger.Logger, m *metrics.RepositoryMetrics) (RepositoryFactory, error) {
	if adapter == nil {
		return nil, fmt.Errorf("storage adapter is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	switch a := adapter.(type) {
	case *postgres.Adapter:
		return relationalFactory(a, relational.DialectPostgres, cfg, log, m), nil
	case *mysql.Adapter:
		return relationalFactory(a, relational.DialectMySQL, cfg, log, m), nil
	case *mongodb.Adapter:
		if err := a.EnsureCollection(ctx, cfg.Collection); err != nil {
			return nil, fmt.Errorf("failed to query collection %s: %w", cfg.Collection, err)
		}
		docStore, err := document.NewMongoStore(a)
		if err != nil {
			return nil, err
		}
		return documentFactory(docStore, cfg, log, m), nil
	case *dynamodb.Adapter:
		docStore, err := document.NewDynamoStore(a)
		if err != nil {
			return nil, err
		}
		return documentFactory(docStore, cfg, log, m), nil
	case document.Store:
		return documentFactory(a, cfg, log, m), nil
	default:
		return nil, fmt.Errorf("no product repository for storage adapter %T", adapter)
	}
}

func relationalFactory(executor relational.SQLExecutor, dialect relational.Dialect, cfg config.DatabaseConfig, log logger.Logger, m *metrics.RepositoryMetrics) RepositoryFactory {
	return func() (repository.Repository[Product], error) {
		repo, err := relational.NewRepository[Product](executor, ProductMapper{}, relational.Options{
			Table:    cfg.Collection,
			IDColumn: FieldID,
			Dialect:  dialect,
			Logger:   log,
			Metrics:  m,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func documentFactory(docStore document.Store, cfg config.DatabaseConfig, log logger.Logger, m *metrics.RepositoryMetrics) RepositoryFactory {
	return func() (repository.Repository[Product], error) {
		repo, err := document.NewRepository[Product](docStore, document.Config{
			Collection:           cfg.Collection,
			FallbackPartitionKey: cfg.FallbackPartitionKey,
			Logger:               log,
			Metrics:              m,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}
