package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrPartitionKeyImmutable is returned when an update would move an entity to another partition.
	ErrPartitionKeyImmutable = errors.New("partition key is immutable")
	// ErrNotFound is returned when a staged write requires an entity that does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateID is returned when an added entity reuses an id stored in another partition.
	ErrDuplicateID = errors.New("id already exists in another partition")
)

// ClientError marks a failure caused by the caller's input rather than by the store.
type ClientError struct {
	EntityID int64
	Err      error
}

// Error returns the error message.
func (e *ClientError) Error() string {
	return fmt.Sprintf("entity %d: %v", e.EntityID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewPartitionKeyError reports an attempted partition key change.
func NewPartitionKeyError(entityID int64, stored, requested string) *ClientError {
	return &ClientError{
		EntityID: entityID,
		Err:      fmt.Errorf("%w: stored %q, requested %q", ErrPartitionKeyImmutable, stored, requested),
	}
}

// NewDuplicateIDError reports an add whose id is already stored under another partition key.
func NewDuplicateIDError(entityID int64, stored, requested string) *ClientError {
	return &ClientError{
		EntityID: entityID,
		Err:      fmt.Errorf("%w: stored %q, requested %q", ErrDuplicateID, stored, requested),
	}
}

// StoreError wraps a failure reported by the underlying store.
type StoreError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStoreError wraps err in a StoreError unless it is nil or already a repository error.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	var clientErr *ClientError
	if errors.As(err, &storeErr) || errors.As(err, &clientErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
