package relational

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/catalog/pkg/repository"
	"github.com/nimburion/catalog/pkg/specification"
)

// widget is a test entity for repository operations
type widget struct {
	ID           int64
	Name         string
	Brand        string
	Price        float64
	PartitionKey string
}

func (w widget) GetID() int64            { return w.ID }
func (w widget) GetPartitionKey() string { return w.PartitionKey }

var widgetColumns = []string{"id", "name", "brand", "price", "partition_key"}

// widgetMapper is a custom mapper for widget
type widgetMapper struct{}

func (widgetMapper) Columns() []string { return widgetColumns }

func (widgetMapper) PartitionColumn() string { return "partition_key" }

func (widgetMapper) ToRow(w widget) ([]string, []any, error) {
	return widgetColumns, []any{w.ID, w.Name, w.Brand, w.Price, w.PartitionKey}, nil
}

func (widgetMapper) FromRow(rows *sql.Rows) (widget, error) {
	var w widget
	err := rows.Scan(&w.ID, &w.Name, &w.Brand, &w.Price, &w.PartitionKey)
	return w, err
}

func widgetRows() *sqlmock.Rows {
	return sqlmock.NewRows(widgetColumns)
}

func newWidgetRepo(t *testing.T, executor SQLExecutor) *Repository[widget] {
	t.Helper()
	repo, err := NewRepository[widget](executor, widgetMapper{}, Options{Table: "widgets"})
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	return repo
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestNewRepository_Validation(t *testing.T) {
	db, _ := newMock(t)
	if _, err := NewRepository[widget](nil, widgetMapper{}, Options{Table: "widgets"}); err == nil {
		t.Fatal("expected error for nil executor")
	}
	if _, err := NewRepository[widget](db, nil, Options{Table: "widgets"}); err == nil {
		t.Fatal("expected error for nil mapper")
	}
	if _, err := NewRepository[widget](db, widgetMapper{}, Options{}); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestRepository_GetByID(t *testing.T) {
	tests := []struct {
		name   string
		id     int64
		rows   *sqlmock.Rows
		wantOK bool
	}{
		{
			name:   "found",
			id:     1,
			rows:   widgetRows().AddRow(int64(1), "Bolt", "acme", 2.5, "acme"),
			wantOK: true,
		},
		{
			name:   "missing",
			id:     999,
			rows:   widgetRows(),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			mock.ExpectQuery(regexp.QuoteMeta(widgetSelect + " WHERE id = $1")).
				WithArgs(tt.id).
				WillReturnRows(tt.rows)

			got, ok, err := newWidgetRepo(t, db).GetByID(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("GetByID() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (got.Name != "Bolt" || got.Price != 2.5) {
				t.Fatalf("GetByID() = %+v", got)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestRepository_ListAndCount(t *testing.T) {
	db, mock := newMock(t)
	spec := specification.New[widget](specification.Eq("brand", "acme")).
		AddOrderBy("price").
		ApplyPaging(0, 2)

	mock.ExpectQuery(regexp.QuoteMeta(widgetSelect + " WHERE brand = $1 ORDER BY price ASC, id ASC LIMIT $2 OFFSET $3")).
		WithArgs("acme", 2, 0).
		WillReturnRows(widgetRows().
			AddRow(int64(2), "Nut", "acme", 0.5, "acme").
			AddRow(int64(1), "Bolt", "acme", 2.5, "acme"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM widgets WHERE brand = $1")).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	repo := newWidgetRepo(t, db)
	items, err := repo.List(context.Background(), spec)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != 2 {
		t.Fatalf("List() = %+v", items)
	}

	count, err := repo.Count(context.Background(), spec)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 7 {
		t.Fatalf("Count() = %d, want 7", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_ListStoreError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	_, err := newWidgetRepo(t, db).List(context.Background(), nil)
	var storeErr *repository.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}

func TestRepository_Exists(t *testing.T) {
	db, mock := newMock(t)
	existsSQL := regexp.QuoteMeta("SELECT 1 FROM widgets WHERE id = $1 LIMIT 1")
	mock.ExpectQuery(existsSQL).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery(existsSQL).WithArgs(int64(2)).WillReturnRows(sqlmock.NewRows([]string{"one"}))

	repo := newWidgetRepo(t, db)
	if ok, err := repo.Exists(context.Background(), 1); err != nil || !ok {
		t.Fatalf("Exists(1) = %v, %v", ok, err)
	}
	if ok, err := repo.Exists(context.Background(), 2); err != nil || ok {
		t.Fatalf("Exists(2) = %v, %v", ok, err)
	}
}

func TestRepository_SaveAllEmpty(t *testing.T) {
	db, mock := newMock(t)

	saved, err := newWidgetRepo(t, db).SaveAll(context.Background())
	if err != nil || saved {
		t.Fatalf("SaveAll() = %v, %v, want false, nil", saved, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected statements: %v", err)
	}
}

func TestRepository_SaveAllOrder(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT partition_key FROM widgets WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"partition_key"}).AddRow("acme"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO widgets (id, name, brand, price, partition_key) VALUES ($1, $2, $3, $4, $5)")).
		WithArgs(int64(1), "Bolt", "acme", 2.5, "acme").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE widgets SET name = $1, brand = $2, price = $3, partition_key = $4 WHERE id = $5")).
		WithArgs("Nut", "acme", 0.75, "acme", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM widgets WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := newWidgetRepo(t, db)
	repo.Remove(widget{ID: 3})
	if err := repo.Update(widget{ID: 2, Name: "Nut", Brand: "acme", Price: 0.75, PartitionKey: "acme"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	repo.Add(widget{ID: 1, Name: "Bolt", Brand: "acme", Price: 2.5, PartitionKey: "acme"})

	saved, err := repo.SaveAll(context.Background())
	if err != nil || !saved {
		t.Fatalf("SaveAll() = %v, %v, want true, nil", saved, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}

	saved, err = repo.SaveAll(context.Background())
	if err != nil || saved {
		t.Fatalf("second SaveAll() = %v, %v, want false, nil", saved, err)
	}
}

func TestRepository_DeleteMissingIsNoop(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM widgets WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := newWidgetRepo(t, db)
	repo.Remove(widget{ID: 42})

	saved, err := repo.SaveAll(context.Background())
	if err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if saved {
		t.Fatal("deleting a missing entity must not count as a write")
	}
}

func TestRepository_UpdateRejectsTrackedPartitionChange(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(widgetSelect + " WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(widgetRows().AddRow(int64(1), "Bolt", "acme", 2.5, "acme"))

	repo := newWidgetRepo(t, db)
	got, _, err := repo.GetByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	got.PartitionKey = "globex"
	err = repo.Update(got)
	if !errors.Is(err, repository.ErrPartitionKeyImmutable) {
		t.Fatalf("Update() error = %v, want ErrPartitionKeyImmutable", err)
	}

	saved, err := repo.SaveAll(context.Background())
	if err != nil || saved {
		t.Fatalf("rejected update must not be staged: SaveAll() = %v, %v", saved, err)
	}
}

func TestRepository_SaveAllRejectsUntrackedPartitionChange(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT partition_key FROM widgets WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"partition_key"}).AddRow("acme"))

	repo := newWidgetRepo(t, db)
	repo.Add(widget{ID: 6, Name: "Gear", PartitionKey: "acme"})
	if err := repo.Update(widget{ID: 5, Name: "Cog", PartitionKey: "globex"}); err != nil {
		t.Fatalf("Update() of untracked entity error = %v", err)
	}

	saved, err := repo.SaveAll(context.Background())
	if !errors.Is(err, repository.ErrPartitionKeyImmutable) {
		t.Fatalf("SaveAll() error = %v, want ErrPartitionKeyImmutable", err)
	}
	if saved {
		t.Fatal("SaveAll() must report false on failure")
	}
	// No INSERT is expected: verification precedes every write.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRepository_UpdateMissingEntity(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT partition_key FROM widgets WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"partition_key"}))

	repo := newWidgetRepo(t, db)
	if err := repo.Update(widget{ID: 9, PartitionKey: "acme"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	_, err := repo.SaveAll(context.Background())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("SaveAll() error = %v, want ErrNotFound", err)
	}
}

// txExecutor records WithTransaction calls around a plain *sql.DB.
type txExecutor struct {
	*sql.DB
	calls int
}

func (e *txExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	e.calls++
	return fn(ctx)
}

func TestRepository_SaveAllUsesTransaction(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO widgets").WillReturnResult(sqlmock.NewResult(1, 1))

	exec := &txExecutor{DB: db}
	repo := newWidgetRepo(t, exec)
	repo.Add(widget{ID: 1, Name: "Bolt", PartitionKey: "acme"})

	if _, err := repo.SaveAll(context.Background()); err != nil {
		t.Fatalf("SaveAll() error = %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("WithTransaction called %d times, want 1", exec.calls)
	}
}

func TestListProjected_ServerSideColumn(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT brand FROM widgets ORDER BY brand ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"brand"}).AddRow("acme").AddRow("globex"))

	repo := newWidgetRepo(t, db)
	proj := specification.NewProjection(
		specification.New[widget](nil).AddOrderBy("brand").MarkDistinct(),
		func(w widget) string { return w.Brand },
	).OfField("brand")

	brands, err := repository.ListProjected[widget, string](context.Background(), repo, proj)
	if err != nil {
		t.Fatalf("ListProjected() error = %v", err)
	}
	if len(brands) != 2 || brands[0] != "acme" || brands[1] != "globex" {
		t.Fatalf("ListProjected() = %v", brands)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
