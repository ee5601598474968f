package repository

// Pending holds the staged writes of a repository instance in the order they were staged.
type Pending[T Entity] struct {
	adds    []T
	updates []T
	deletes []T
}

// Add stages an insert.
func (p *Pending[T]) Add(entity T) { p.adds = append(p.adds, entity) }

// Update stages a replacement.
func (p *Pending[T]) Update(entity T) { p.updates = append(p.updates, entity) }

// Remove stages a deletion.
func (p *Pending[T]) Remove(entity T) { p.deletes = append(p.deletes, entity) }

// Len returns the number of staged writes.
func (p *Pending[T]) Len() int {
	return len(p.adds) + len(p.updates) + len(p.deletes)
}

// Drain returns the staged writes and clears them.
func (p *Pending[T]) Drain() (adds, updates, deletes []T) {
	adds, updates, deletes = p.adds, p.updates, p.deletes
	p.adds, p.updates, p.deletes = nil, nil, nil
	return adds, updates, deletes
}
