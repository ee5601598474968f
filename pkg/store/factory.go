package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/catalog/pkg/config"
	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/repository/document"
	"github.com/nimburion/catalog/pkg/store/dynamodb"
	"github.com/nimburion/catalog/pkg/store/mongodb"
	"github.com/nimburion/catalog/pkg/store/mysql"
	"github.com/nimburion/catalog/pkg/store/postgres"
)

// NewStorageAdapter selects and initializes the storage adapter named by database.type.
// It does not fall back to another provider when the selected one fails.
func NewStorageAdapter(cfg config.DatabaseConfig, log logger.Logger) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypePostgres:
		return open(postgres.NewAdapter(postgres.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, log))
	case config.DatabaseTypeMySQL:
		return open(mysql.NewAdapter(mysql.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, log))
	case config.DatabaseTypeMongoDB:
		return open(mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log))
	case config.DatabaseTypeDynamoDB:
		return open(dynamodb.NewAdapter(dynamodb.Config{
			Region:           cfg.Region,
			Endpoint:         cfg.Endpoint,
			AccessKeyID:      cfg.AccessKeyID,
			SecretAccessKey:  cfg.SecretAccessKey,
			SessionToken:     cfg.SessionToken,
			OperationTimeout: cfg.QueryTimeout,
		}, log))
	case config.DatabaseTypeMemory:
		log.Warn("using in-memory product store; data is lost on exit")
		return document.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: postgres, mysql, mongodb, dynamodb, memory)", cfg.Type)
	}
}

// open drops the typed nil a failed constructor returns, so callers can compare with nil.
func open[A Adapter](adapter A, err error) (Adapter, error) {
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
