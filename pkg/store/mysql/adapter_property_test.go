package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Staged product writes inside WithTransaction either all commit or all roll back.
func TestProperty_TransactionCommitsOnlyCleanBatches(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	upsert := regexp.QuoteMeta("INSERT INTO products (id, name) VALUES (?, ?) ON DUPLICATE KEY UPDATE name = VALUES(name)")

	properties.Property("commit iff every statement succeeds", prop.ForAll(
		func(writes int, failAt int) bool {
			db, mock, err := sqlmock.New()
			if err != nil {
				return false
			}
			defer db.Close()

			fails := failAt < writes
			mock.ExpectBegin()
			for i := 0; i < writes; i++ {
				exp := mock.ExpectExec(upsert).WithArgs(int64(i+1), "p")
				if fails && i == failAt {
					exp.WillReturnError(errors.New("duplicate entry"))
					break
				}
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}
			if fails {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			a := NewAdapterFromDB(db, Config{}, &mockLogger{})
			err = a.WithTransaction(context.Background(), func(ctx context.Context) error {
				if _, ok := GetTx(ctx); !ok {
					return errors.New("no transaction in context")
				}
				for i := 0; i < writes; i++ {
					if _, err := a.ExecContext(ctx, "INSERT INTO products (id, name) VALUES (?, ?) ON DUPLICATE KEY UPDATE name = VALUES(name)", int64(i+1), "p"); err != nil {
						return err
					}
				}
				return nil
			})

			return (err != nil) == fails && mock.ExpectationsWereMet() == nil
		},
		gen.IntRange(0, 8),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
