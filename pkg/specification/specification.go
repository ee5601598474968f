// Package specification describes catalog queries independently of the store that runs them.
//
// A Specification holds a predicate (a Node tree over field names), a single ordering,
// optional paging and a distinct flag. It carries no execution logic: repositories hand it
// to a store-specific evaluator.
package specification

// DefaultOrderField is the field evaluators order by when a specification has no ordering,
// so paging stays deterministic.
const DefaultOrderField = "id"

// Order defines ordering on a single field.
type Order struct {
	Field string
	Desc  bool
}

// Specification describes a query over entities of type T.
// The zero value matches everything, unordered and unpaged.
type Specification[T any] struct {
	criteria Node
	orderBy  string
	orderDsc string
	skip     int
	take     int
	paged    bool
	distinct bool
}

// New returns a specification with the given criteria (nil matches all).
func New[T any](criteria Node) *Specification[T] {
	return &Specification[T]{criteria: criteria}
}

// SetCriteria replaces the predicate.
func (s *Specification[T]) SetCriteria(criteria Node) *Specification[T] {
	s.criteria = criteria
	return s
}

// AddOrderBy orders ascending by field. The last ordering call wins.
func (s *Specification[T]) AddOrderBy(field string) *Specification[T] {
	s.orderBy = field
	s.orderDsc = ""
	return s
}

// AddOrderByDescending orders descending by field. The last ordering call wins.
func (s *Specification[T]) AddOrderByDescending(field string) *Specification[T] {
	s.orderDsc = field
	s.orderBy = ""
	return s
}

// ApplyPaging enables paging. skip is expected to be PageSkip(pageIndex, pageSize) and is
// not clamped here.
func (s *Specification[T]) ApplyPaging(skip, take int) *Specification[T] {
	s.skip = skip
	s.take = take
	s.paged = true
	return s
}

// MarkDistinct requests distinct results.
func (s *Specification[T]) MarkDistinct() *Specification[T] {
	s.distinct = true
	return s
}

// Criteria returns the predicate, nil meaning match all.
func (s *Specification[T]) Criteria() Node {
	if s == nil {
		return nil
	}
	return s.criteria
}

// Order returns the active ordering, if any.
func (s *Specification[T]) Order() (Order, bool) {
	switch {
	case s == nil:
		return Order{}, false
	case s.orderBy != "":
		return Order{Field: s.orderBy}, true
	case s.orderDsc != "":
		return Order{Field: s.orderDsc, Desc: true}, true
	}
	return Order{}, false
}

// OrderOrDefault returns the active ordering or ascending DefaultOrderField.
func (s *Specification[T]) OrderOrDefault() Order {
	if o, ok := s.Order(); ok {
		return o
	}
	return Order{Field: DefaultOrderField}
}

// Paging returns skip and take and whether paging is enabled.
func (s *Specification[T]) Paging() (skip, take int, enabled bool) {
	if s == nil {
		return 0, 0, false
	}
	return s.skip, s.take, s.paged
}

// IsDistinct reports whether distinct results were requested.
func (s *Specification[T]) IsDistinct() bool {
	return s != nil && s.distinct
}

// PageSkip converts a 1-based page index into a row offset.
func PageSkip(pageIndex, pageSize int) int {
	return pageSize * (pageIndex - 1)
}

// Projection is a Specification whose results are mapped through Select.
//
// Field optionally names the single stored field Select reads. Evaluators able to
// project server-side use it; everyone else applies Select to the fetched entities.
type Projection[T any, R comparable] struct {
	*Specification[T]
	Select func(T) R
	Field  string
}

// NewProjection wraps spec with a projector. A nil spec matches everything.
func NewProjection[T any, R comparable](spec *Specification[T], sel func(T) R) *Projection[T, R] {
	if spec == nil {
		spec = New[T](nil)
	}
	return &Projection[T, R]{Specification: spec, Select: sel}
}

// OfField records the stored field read by Select.
func (p *Projection[T, R]) OfField(field string) *Projection[T, R] {
	p.Field = field
	return p
}

// Apply projects entities in order, removing duplicates when the specification is distinct.
func (p *Projection[T, R]) Apply(entities []T) []R {
	out := make([]R, 0, len(entities))
	var seen map[R]struct{}
	if p.IsDistinct() {
		seen = make(map[R]struct{}, len(entities))
	}
	for _, e := range entities {
		r := p.Select(e)
		if seen != nil {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
