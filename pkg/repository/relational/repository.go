package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/observability/metrics"
	"github.com/nimburion/catalog/pkg/observability/tracing"
	"github.com/nimburion/catalog/pkg/repository"
	"github.com/nimburion/catalog/pkg/specification"
)

// SQLExecutor defines the interface for executing SQL queries.
// This can be a *sql.DB, *sql.Tx, or any adapter that provides these methods.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EntityMapper defines how to map between entities and database rows.
type EntityMapper[T any] interface {
	// Columns lists the selected columns, in the order FromRow scans them.
	Columns() []string

	// ToRow converts an entity to column names and values for INSERT/UPDATE.
	ToRow(entity T) (columns []string, values []any, err error)

	// FromRow scans the current row into an entity.
	FromRow(rows *sql.Rows) (T, error)
}

// PartitionColumnMapper is implemented by mappers whose table stores the partition key.
// Updates of entities not read through the repository are checked against that column.
type PartitionColumnMapper interface {
	PartitionColumn() string
}

// Options configures a Repository.
type Options struct {
	Table    string
	IDColumn string
	Dialect  Dialect
	Logger   logger.Logger
	Metrics  *metrics.RepositoryMetrics
}

// Repository implements repository.Repository over a SQL table.
type Repository[T repository.Entity] struct {
	executor  SQLExecutor
	txManager repository.TransactionManager
	table     string
	idColumn  string
	mapper    EntityMapper[T]
	evaluator *Evaluator[T]
	pending   repository.Pending[T]
	tracker   *repository.PartitionTracker
	inst      *repository.Instrumentation
}

// NewRepository creates a repository over executor. When executor also implements
// repository.TransactionManager, SaveAll runs inside a single transaction.
func NewRepository[T repository.Entity](executor SQLExecutor, mapper EntityMapper[T], opts Options) (*Repository[T], error) {
	if executor == nil {
		return nil, errors.New("sql executor is required")
	}
	if mapper == nil {
		return nil, errors.New("entity mapper is required")
	}
	if opts.Table == "" {
		return nil, errors.New("table name is required")
	}
	if opts.IDColumn == "" {
		opts.IDColumn = specification.DefaultOrderField
	}
	if opts.Dialect == "" {
		opts.Dialect = DialectPostgres
	}

	txManager, _ := executor.(repository.TransactionManager)
	return &Repository[T]{
		executor:  executor,
		txManager: txManager,
		table:     opts.Table,
		idColumn:  opts.IDColumn,
		mapper:    mapper,
		evaluator: NewEvaluator[T](opts.Table, opts.IDColumn, mapper.Columns(), opts.Dialect),
		tracker:   repository.NewPartitionTracker(),
		inst:      repository.NewInstrumentation(string(opts.Dialect), opts.Dialect.System(), opts.Table, opts.Logger, opts.Metrics),
	}, nil
}

// Evaluator returns the evaluator used to build queries.
func (r *Repository[T]) Evaluator() *Evaluator[T] {
	return r.evaluator
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

// GetByID retrieves an entity by its ID.
func (r *Repository[T]) GetByID(ctx context.Context, id int64) (T, bool, error) {
	return r.first(ctx, tracing.SpanOperationGet, r.evaluator.ByIDQuery(id))
}

// GetWithSpec returns the first entity matching spec.
func (r *Repository[T]) GetWithSpec(ctx context.Context, spec *specification.Specification[T]) (T, bool, error) {
	q, err := r.evaluator.FirstQuery(spec)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return r.first(ctx, tracing.SpanOperationGet, q)
}

// List returns entities matching spec.
func (r *Repository[T]) List(ctx context.Context, spec *specification.Specification[T]) ([]T, error) {
	q, err := r.evaluator.Query(spec)
	if err != nil {
		return nil, err
	}
	var entities []T
	err = r.inst.Observe(ctx, tracing.SpanOperationQuery, func(ctx context.Context) error {
		entities, err = r.query(ctx, q)
		return err
	})
	return entities, err
}

// ListAll returns every entity ordered by id.
func (r *Repository[T]) ListAll(ctx context.Context) ([]T, error) {
	return r.List(ctx, nil)
}

// Count returns the number of entities matching spec.
func (r *Repository[T]) Count(ctx context.Context, spec *specification.Specification[T]) (int64, error) {
	q, err := r.evaluator.CountQuery(spec)
	if err != nil {
		return 0, err
	}
	var count int64
	err = r.inst.Observe(ctx, tracing.SpanOperationCount, func(ctx context.Context) error {
		if err := r.executor.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
			return repository.WrapStoreError("count", fmt.Errorf("failed to count entities: %w", err))
		}
		return nil
	})
	return count, err
}

// Exists reports whether an entity with id exists.
func (r *Repository[T]) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.inst.Observe(ctx, tracing.SpanOperationGet, func(ctx context.Context) error {
		var err error
		exists, err = r.exists(ctx, id)
		return err
	})
	return exists, err
}

// ListColumn fetches a single column for spec, see Evaluator.ColumnQuery.
func (r *Repository[T]) ListColumn(ctx context.Context, spec *specification.Specification[T], field string) ([]any, error) {
	q, err := r.evaluator.ColumnQuery(spec, field)
	if err != nil {
		return nil, err
	}
	var values []any
	err = r.inst.Observe(ctx, tracing.SpanOperationQuery, func(ctx context.Context) error {
		rows, err := r.executor.QueryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return repository.WrapStoreError("list_column", fmt.Errorf("failed to query column: %w", err))
		}
		defer rows.Close()

		values = []any{}
		for rows.Next() {
			var v any
			if err := rows.Scan(&v); err != nil {
				return repository.WrapStoreError("list_column", fmt.Errorf("failed to scan column: %w", err))
			}
			values = append(values, v)
		}
		if err := rows.Err(); err != nil {
			return repository.WrapStoreError("list_column", fmt.Errorf("error iterating rows: %w", err))
		}
		return nil
	})
	return values, err
}

// SaveAll executes staged inserts, updates and deletes in that order.
// Updates of entities that were not read through this repository are checked against the
// stored partition key before any statement is executed.
func (r *Repository[T]) SaveAll(ctx context.Context) (bool, error) {
	adds, updates, deletes := r.pending.Drain()
	if len(adds)+len(updates)+len(deletes) == 0 {
		return false, nil
	}

	executed := false
	err := r.inst.Observe(ctx, tracing.SpanOperationSaveAll, func(ctx context.Context) error {
		return repository.RunInTransaction(ctx, r.txManager, func(ctx context.Context) error {
			if err := r.verifyPartitions(ctx, updates); err != nil {
				return err
			}
			for _, entity := range adds {
				if err := r.insert(ctx, entity); err != nil {
					return err
				}
				executed = true
			}
			for _, entity := range updates {
				if err := r.update(ctx, entity); err != nil {
					return err
				}
				executed = true
			}
			for _, entity := range deletes {
				deleted, err := r.delete(ctx, entity.GetID())
				if err != nil {
					return err
				}
				executed = executed || deleted
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	for _, entity := range adds {
		r.tracker.Track(entity)
	}
	for _, entity := range deletes {
		r.tracker.Forget(entity.GetID())
	}
	return executed, nil
}

func (r *Repository[T]) first(ctx context.Context, op tracing.SpanOperation, q Query) (T, bool, error) {
	var entities []T
	err := r.inst.Observe(ctx, op, func(ctx context.Context) error {
		var err error
		entities, err = r.query(ctx, q)
		return err
	})
	if err != nil || len(entities) == 0 {
		var zero T
		return zero, false, err
	}
	return entities[0], true, nil
}

func (r *Repository[T]) query(ctx context.Context, q Query) ([]T, error) {
	r.inst.Logger.Debug("executing query", "sql", q.SQL)
	rows, err := r.executor.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, repository.WrapStoreError("query", fmt.Errorf("failed to query entities: %w", err))
	}
	defer rows.Close()

	entities := []T{}
	for rows.Next() {
		entity, err := r.mapper.FromRow(rows)
		if err != nil {
			return nil, repository.WrapStoreError("query", fmt.Errorf("failed to scan entity: %w", err))
		}
		r.tracker.Track(entity)
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.WrapStoreError("query", fmt.Errorf("error iterating rows: %w", err))
	}
	return entities, nil
}

func (r *Repository[T]) exists(ctx context.Context, id int64) (bool, error) {
	q := r.evaluator.ExistsQuery(id)
	var one int
	err := r.executor.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, repository.WrapStoreError("exists", fmt.Errorf("failed to check entity: %w", err))
	}
	return true, nil
}

func (r *Repository[T]) verifyPartitions(ctx context.Context, updates []T) error {
	pcm, ok := r.mapper.(PartitionColumnMapper)
	if !ok {
		return nil
	}
	column := pcm.PartitionColumn()
	for _, entity := range updates {
		if _, tracked := r.tracker.Known(entity.GetID()); tracked {
			continue
		}
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
			column, r.table, r.idColumn, r.evaluator.dialect.Placeholder(1))
		var stored sql.NullString
		err := r.executor.QueryRowContext(ctx, query, entity.GetID()).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return &repository.ClientError{EntityID: entity.GetID(), Err: repository.ErrNotFound}
		}
		if err != nil {
			return repository.WrapStoreError("save_all", fmt.Errorf("failed to read partition key: %w", err))
		}
		requested, _ := repository.PartitionKeyOf(entity)
		if err := repository.CheckPartitionKey(entity.GetID(), stored.String, requested); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository[T]) insert(ctx context.Context, entity T) error {
	columns, values, err := r.mapper.ToRow(entity)
	if err != nil {
		return fmt.Errorf("failed to map entity to row: %w", err)
	}

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = r.evaluator.dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		r.table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)

	if _, err := r.executor.ExecContext(ctx, query, values...); err != nil {
		return repository.WrapStoreError("insert", fmt.Errorf("failed to create entity: %w", err))
	}
	return nil
}

func (r *Repository[T]) update(ctx context.Context, entity T) error {
	columns, values, err := r.mapper.ToRow(entity)
	if err != nil {
		return fmt.Errorf("failed to map entity to row: %w", err)
	}

	setClauses := make([]string, 0, len(columns))
	args := make([]any, 0, len(values)+1)
	for i, col := range columns {
		if col == r.idColumn {
			continue
		}
		args = append(args, values[i])
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", col, r.evaluator.dialect.Placeholder(len(args))))
	}
	args = append(args, entity.GetID())
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s",
		r.table,
		strings.Join(setClauses, ", "),
		r.idColumn,
		r.evaluator.dialect.Placeholder(len(args)),
	)

	result, err := r.executor.ExecContext(ctx, query, args...)
	if err != nil {
		return repository.WrapStoreError("update", fmt.Errorf("failed to update entity: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return repository.WrapStoreError("update", fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected > 0 {
		return nil
	}

	// MySQL reports zero affected rows when the new values equal the stored ones.
	exists, err := r.exists(ctx, entity.GetID())
	if err != nil {
		return err
	}
	if !exists {
		return &repository.ClientError{EntityID: entity.GetID(), Err: repository.ErrNotFound}
	}
	return nil
}

func (r *Repository[T]) delete(ctx context.Context, id int64) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", r.table, r.idColumn, r.evaluator.dialect.Placeholder(1))

	result, err := r.executor.ExecContext(ctx, query, id)
	if err != nil {
		return false, repository.WrapStoreError("delete", fmt.Errorf("failed to delete entity: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, repository.WrapStoreError("delete", fmt.Errorf("failed to get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		r.inst.Logger.Debug("delete of missing entity ignored", "entity_id", id)
	}
	return rowsAffected > 0, nil
}
