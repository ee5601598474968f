// Package relational evaluates specifications as SQL and provides a staged-write repository
// over database/sql.
package relational

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nimburion/catalog/pkg/repository"
	"github.com/nimburion/catalog/pkg/specification"
)

// ErrUnknownField is returned when a specification references a field that is not a column.
var ErrUnknownField = errors.New("unknown field")

// Query is a parameterized SQL statement.
type Query struct {
	SQL  string
	Args []any
}

// Evaluator translates specifications over T into SQL against a single table.
// Field names are column names; only the configured columns may be referenced.
type Evaluator[T any] struct {
	table    string
	idColumn string
	columns  []string
	known    map[string]struct{}
	dialect  Dialect
}

// NewEvaluator creates an evaluator selecting columns from table. idColumn must be one of columns.
func NewEvaluator[T any](table, idColumn string, columns []string, dialect Dialect) *Evaluator[T] {
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}
	return &Evaluator[T]{
		table:    table,
		idColumn: idColumn,
		columns:  columns,
		known:    known,
		dialect:  dialect,
	}
}

// Query builds the select for spec: criteria, then ordering (spec order or id ascending,
// with id as tie-breaker), then LIMIT/OFFSET when paging is enabled.
func (e *Evaluator[T]) Query(spec *specification.Specification[T]) (Query, error) {
	b := e.newBuilder()
	b.sb.WriteString("SELECT ")
	b.sb.WriteString(strings.Join(e.columns, ", "))
	b.sb.WriteString(" FROM ")
	b.sb.WriteString(e.table)
	if err := b.where(spec.Criteria()); err != nil {
		return Query{}, err
	}
	if err := b.orderBy(spec.OrderOrDefault(), e.idColumn); err != nil {
		return Query{}, err
	}
	if skip, take, ok := spec.Paging(); ok {
		b.limit(skip, take)
	}
	return b.query(), nil
}

// FirstQuery builds the select for the first entity matching spec.
func (e *Evaluator[T]) FirstQuery(spec *specification.Specification[T]) (Query, error) {
	if _, _, ok := spec.Paging(); ok {
		return e.Query(spec)
	}
	q, err := e.Query(spec)
	if err != nil {
		return Query{}, err
	}
	n := len(q.Args) + 1
	q.SQL += fmt.Sprintf(" LIMIT %s", e.dialect.Placeholder(n))
	q.Args = append(q.Args, 1)
	return q, nil
}

// CountQuery builds a count over spec's criteria. Ordering and paging are ignored.
func (e *Evaluator[T]) CountQuery(spec *specification.Specification[T]) (Query, error) {
	b := e.newBuilder()
	b.sb.WriteString("SELECT COUNT(*) FROM ")
	b.sb.WriteString(e.table)
	if err := b.where(spec.Criteria()); err != nil {
		return Query{}, err
	}
	return b.query(), nil
}

// ByIDQuery builds a select of the row with the given id.
func (e *Evaluator[T]) ByIDQuery(id int64) Query {
	return Query{
		SQL: fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
			strings.Join(e.columns, ", "), e.table, e.idColumn, e.dialect.Placeholder(1)),
		Args: []any{id},
	}
}

// ExistsQuery builds a query returning one row when id exists.
func (e *Evaluator[T]) ExistsQuery(id int64) Query {
	return Query{
		SQL: fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s LIMIT 1",
			e.table, e.idColumn, e.dialect.Placeholder(1)),
		Args: []any{id},
	}
}

// ColumnQuery builds a single-column select for spec. Distinct projections are evaluated
// server-side only when spec orders by the projected column, since DISTINCT cannot keep
// first-seen order under another ordering. Other distinct projections return
// repository.ErrProjectionUnsupported.
func (e *Evaluator[T]) ColumnQuery(spec *specification.Specification[T], column string) (Query, error) {
	if _, ok := e.known[column]; !ok {
		return Query{}, fmt.Errorf("%w: %s", ErrUnknownField, column)
	}
	order := spec.OrderOrDefault()
	skip, take, paged := spec.Paging()

	b := e.newBuilder()
	if !spec.IsDistinct() {
		fmt.Fprintf(&b.sb, "SELECT %s FROM %s", column, e.table)
		if err := b.where(spec.Criteria()); err != nil {
			return Query{}, err
		}
		if err := b.orderBy(order, e.idColumn); err != nil {
			return Query{}, err
		}
		if paged {
			b.limit(skip, take)
		}
		return b.query(), nil
	}

	if order.Field != column {
		return Query{}, repository.ErrProjectionUnsupported
	}
	direction := "ASC"
	if order.Desc {
		direction = "DESC"
	}
	if !paged {
		fmt.Fprintf(&b.sb, "SELECT DISTINCT %s FROM %s", column, e.table)
		if err := b.where(spec.Criteria()); err != nil {
			return Query{}, err
		}
		fmt.Fprintf(&b.sb, " ORDER BY %s %s", column, direction)
		return b.query(), nil
	}

	fmt.Fprintf(&b.sb, "SELECT DISTINCT %s FROM (SELECT %s FROM %s", column, column, e.table)
	if err := b.where(spec.Criteria()); err != nil {
		return Query{}, err
	}
	if err := b.orderBy(order, e.idColumn); err != nil {
		return Query{}, err
	}
	b.limit(skip, take)
	fmt.Fprintf(&b.sb, ") AS page ORDER BY %s %s", column, direction)
	return b.query(), nil
}

func (e *Evaluator[T]) newBuilder() *builder {
	return &builder{known: e.known, dialect: e.dialect}
}

type builder struct {
	known   map[string]struct{}
	dialect Dialect
	sb      strings.Builder
	args    []any
}

func (b *builder) query() Query {
	return Query{SQL: b.sb.String(), Args: b.args}
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

func (b *builder) column(field string) (string, error) {
	if _, ok := b.known[field]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return field, nil
}

func (b *builder) where(node specification.Node) error {
	if node == nil {
		return nil
	}
	clause, err := b.node(node)
	if err != nil {
		return err
	}
	b.sb.WriteString(" WHERE ")
	b.sb.WriteString(clause)
	return nil
}

func (b *builder) orderBy(order specification.Order, idColumn string) error {
	col, err := b.column(order.Field)
	if err != nil {
		return err
	}
	direction := "ASC"
	if order.Desc {
		direction = "DESC"
	}
	fmt.Fprintf(&b.sb, " ORDER BY %s %s", col, direction)
	if col != idColumn {
		fmt.Fprintf(&b.sb, ", %s ASC", idColumn)
	}
	return nil
}

func (b *builder) limit(skip, take int) {
	if skip < 0 {
		skip = 0
	}
	if take < 0 {
		take = 0
	}
	limit := b.bind(take)
	offset := b.bind(skip)
	fmt.Fprintf(&b.sb, " LIMIT %s OFFSET %s", limit, offset)
}

var comparisonOps = map[specification.Operator]string{
	specification.OpEq: "=",
	specification.OpNe: "<>",
	specification.OpGt: ">",
	specification.OpGe: ">=",
	specification.OpLt: "<",
	specification.OpLe: "<=",
}

func (b *builder) node(node specification.Node) (string, error) {
	switch n := node.(type) {
	case specification.Condition:
		return b.condition(n)
	case specification.And:
		return b.group(n.Children, " AND ", "1=1")
	case specification.Or:
		return b.group(n.Children, " OR ", "1=0")
	default:
		return "", fmt.Errorf("unsupported specification node %T", node)
	}
}

func (b *builder) group(children []specification.Node, sep, empty string) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := b.node(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *builder) condition(c specification.Condition) (string, error) {
	col, err := b.column(c.Field)
	if err != nil {
		return "", err
	}
	if op, ok := comparisonOps[c.Op]; ok {
		return fmt.Sprintf("%s %s %s", col, op, b.bind(c.Value)), nil
	}

	switch c.Op {
	case specification.OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return "", fmt.Errorf("in condition on %s: expected []any, got %T", c.Field, c.Value)
		}
		if len(values) == 0 {
			return "1=0", nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = b.bind(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	case specification.OpContains:
		pattern := "%" + escapeLike(fmt.Sprint(c.Value)) + "%"
		return fmt.Sprintf("%s LIKE %s", col, b.bind(pattern)), nil
	default:
		return "", fmt.Errorf("unsupported operator %q on %s", c.Op, c.Field)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards with the default backslash escape character shared by
// PostgreSQL and MySQL.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
