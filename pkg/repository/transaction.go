package repository

import "context"

// TransactionManager runs fn inside a transaction carried by ctx.
// The transaction is rolled back when fn returns an error and committed otherwise.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunInTransaction uses tm when it is non-nil and calls fn directly otherwise.
func RunInTransaction(ctx context.Context, tm TransactionManager, fn func(ctx context.Context) error) error {
	if tm == nil {
		return fn(ctx)
	}
	return tm.WithTransaction(ctx, fn)
}
