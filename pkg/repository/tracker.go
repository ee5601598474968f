package repository

// PartitionTracker remembers the partition key of every entity read through a repository
// instance so that updates can be checked without another round trip.
type PartitionTracker struct {
	keys map[int64]string
}

// NewPartitionTracker creates an empty tracker.
func NewPartitionTracker() *PartitionTracker {
	return &PartitionTracker{keys: make(map[int64]string)}
}

// Track records the partition key of entity. Entities without one are ignored.
func (t *PartitionTracker) Track(entity Entity) {
	if key, ok := PartitionKeyOf(entity); ok {
		t.keys[entity.GetID()] = key
	}
}

// Known returns the recorded partition key for id.
func (t *PartitionTracker) Known(id int64) (string, bool) {
	key, ok := t.keys[id]
	return key, ok
}

// Forget drops the record for id.
func (t *PartitionTracker) Forget(id int64) {
	delete(t.keys, id)
}

// Verify fails when entity's partition key differs from the recorded one.
// Untracked entities pass and must be verified against the store.
func (t *PartitionTracker) Verify(entity Entity) error {
	stored, ok := t.keys[entity.GetID()]
	if !ok {
		return nil
	}
	requested, _ := PartitionKeyOf(entity)
	return CheckPartitionKey(entity.GetID(), stored, requested)
}

// CheckPartitionKey fails when requested differs from the stored partition key.
func CheckPartitionKey(id int64, stored, requested string) error {
	if requested != stored {
		return NewPartitionKeyError(id, stored, requested)
	}
	return nil
}
