// Package postgres provides the PostgreSQL connection adapter behind the relational catalog repository.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nimburion/catalog/pkg/observability/logger"
)

// Adapter provides PostgreSQL connectivity with connection pooling. It satisfies the
// relational repository's SQLExecutor and TransactionManager contracts.
type Adapter struct {
	db     *sql.DB
	logger logger.Logger
	config Config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// NewAdapter opens a pooled connection and verifies it with a ping.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("PostgreSQL connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
	)

	return NewAdapterFromDB(db, cfg, log), nil
}

// NewAdapterFromDB wraps an already opened database. Pool settings in cfg are not applied.
func NewAdapterFromDB(db *sql.DB, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{db: db, logger: log, config: cfg}
}

// DB returns the underlying *sql.DB for direct access when needed
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// HealthCheck verifies the database connection is healthy with a timeout
func (a *Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Error("PostgreSQL health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close gracefully closes the database connection
func (a *Adapter) Close() error {
	a.logger.Info("closing PostgreSQL connection")

	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close PostgreSQL connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	a.logger.Info("PostgreSQL connection closed successfully")
	return nil
}

// WithTransaction executes fn within a database transaction.
// If fn returns an error or panics, the transaction is rolled back; otherwise it is committed.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Error("failed to rollback transaction after panic",
					"panic", p,
					"rollback_error", rbErr,
				)
			}
			panic(p)
		}
	}()

	// Statements issued through the adapter with txCtx join the transaction.
	txCtx := context.WithValue(ctx, txContextKey, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Error("failed to rollback transaction",
				"original_error", err,
				"rollback_error", rbErr,
			)
			return fmt.Errorf("failed to rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type contextKey string

const txContextKey contextKey = "tx"

// GetTx extracts a transaction from the context, if present
func GetTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey).(*sql.Tx)
	return tx, ok
}

// ExecContext executes a statement with the transaction from context if available,
// otherwise on the pool.
func (a *Adapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if tx, ok := GetTx(ctx); ok {
		return tx.ExecContext(queryCtx, query, args...)
	}
	return a.db.ExecContext(queryCtx, query, args...)
}

// QueryContext runs a query with the transaction from context if available.
// The returned rows stay readable until the query timeout elapses.
func (a *Adapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	queryCtx, release := a.withRowsTimeout(ctx)
	var (
		rows *sql.Rows
		err  error
	)
	if tx, ok := GetTx(ctx); ok {
		rows, err = tx.QueryContext(queryCtx, query, args...)
	} else {
		rows, err = a.db.QueryContext(queryCtx, query, args...)
	}
	release(err)
	return rows, err
}

// QueryRowContext runs a single-row query with the transaction from context if available.
func (a *Adapter) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	queryCtx, release := a.withRowsTimeout(ctx)
	var row *sql.Row
	if tx, ok := GetTx(ctx); ok {
		row = tx.QueryRowContext(queryCtx, query, args...)
	} else {
		row = a.db.QueryRowContext(queryCtx, query, args...)
	}
	release(row.Err())
	return row
}

func (a *Adapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}

// withRowsTimeout is withQueryTimeout for results read after the call returns. Cancelling
// on return would close the rows, so on success the context is released by its deadline.
func (a *Adapter) withRowsTimeout(ctx context.Context) (context.Context, func(error)) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	return queryCtx, func(err error) {
		if err != nil {
			cancel()
			return
		}
		time.AfterFunc(a.config.QueryTimeout, cancel)
	}
}
