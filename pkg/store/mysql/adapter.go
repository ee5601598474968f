// Package mysql provides the MySQL connection adapter behind the relational catalog repository.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/nimburion/catalog/pkg/observability/logger"
)

// Adapter provides MySQL connectivity with pooled connections. It satisfies the relational
// repository's SQLExecutor and TransactionManager contracts.
type Adapter struct {
	db     *sql.DB
	logger logger.Logger
	config Config
}

// Config holds MySQL configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// NewAdapter opens a pooled connection and verifies it with a ping. The DSN must set
// parseTime=true when tables carry temporal columns.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("mysql", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	log.Info("MySQL connection established",
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

// DB returns the underlying *sql.DB.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// HealthCheck pings the database with a two second timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.db.PingContext(hcCtx); err != nil {
		a.logger.Error("MySQL health check failed", "error", err)
		return fmt.Errorf("mysql health check failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	a.logger.Info("closing MySQL connection")
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close MySQL connection", "error", err)
		return fmt.Errorf("failed to close mysql connection: %w", err)
	}
	a.logger.Info("MySQL connection closed successfully")
	return nil
}

type contextKey string

const txContextKey contextKey = "mysql_tx"

// GetTx extracts the transaction started by WithTransaction, if any.
func GetTx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey).(*sql.Tx)
	return tx, ok
}

// WithTransaction runs fn in a transaction, committing when it returns nil and rolling
// back on error or panic. Deadlocks are not retried.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				a.logger.Error("failed to rollback transaction after panic", "panic", p, "rollback_error", rbErr)
			}
			panic(p)
		}
	}()

	txCtx := context.WithValue(ctx, txContextKey, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExecContext executes a statement in the context transaction if any.
func (a *Adapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	queryCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if tx, ok := GetTx(ctx); ok {
		return tx.ExecContext(queryCtx, query, args...)
	}
	return a.db.ExecContext(queryCtx, query, args...)
}

// QueryContext runs a query in the context transaction if any. The rows stay readable
// until the query timeout elapses.
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

// QueryRowContext runs a single-row query in the context transaction if any.
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

// withRowsTimeout keeps the query context alive past the call on success; the deadline
// releases it.
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
