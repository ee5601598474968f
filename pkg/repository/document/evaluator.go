package document

import (
	"github.com/nimburion/catalog/pkg/specification"
)

// Evaluator lowers specifications into document queries.
type Evaluator[T any] struct{}

// Query carries criteria, the ordering (id ascending by default) and paging.
// Negative skip and take are clamped to zero.
func (Evaluator[T]) Query(spec *specification.Specification[T]) Query {
	skip, take, paged := spec.Paging()
	return Query{
		Filter: spec.Criteria(),
		Order:  spec.OrderOrDefault(),
		Skip:   max(skip, 0),
		Take:   max(take, 0),
		Paged:  paged,
	}
}

// FirstQuery is Query limited to one result when spec is unpaged.
func (e Evaluator[T]) FirstQuery(spec *specification.Specification[T]) Query {
	q := e.Query(spec)
	if !q.Paged {
		q.Paged = true
		q.Take = 1
	}
	return q
}

// CountQuery returns the filter only; counting ignores ordering and paging.
func (Evaluator[T]) CountQuery(spec *specification.Specification[T]) specification.Node {
	return spec.Criteria()
}

// Page applies q's ordering and paging to docs in memory, for backends that cannot do
// it server-side. Ties are broken by id so pages stay stable.
func Page(docs []Document, q Query) []Document {
	sortDocuments(docs, q.Order)
	if !q.Paged {
		return docs
	}
	if q.Skip >= len(docs) {
		return []Document{}
	}
	end := len(docs)
	if q.Take < end-q.Skip {
		end = q.Skip + q.Take
	}
	return docs[q.Skip:end]
}
