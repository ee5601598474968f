package schema

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/catalog/pkg/repository/relational"
	"github.com/nimburion/catalog/pkg/testutil"
)

var testScripts = fstest.MapFS{
	"ddl/01_products.sql": {Data: []byte(`CREATE TABLE IF NOT EXISTS {{.Table}} (id BIGINT PRIMARY KEY, name TEXT);

CREATE INDEX IF NOT EXISTS {{.Table}}_name ON {{.Table}} (name);
`)},
	"ddl/02_brands.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS brands (id BIGINT PRIMARY KEY)")},
	"ddl/README.md":     {Data: []byte("not a script")},
	"ddl/nested/x.sql":  {Data: []byte("CREATE TABLE x (id INT)")},
}

var testVars = map[string]string{"Table": "products"}

func newProvisioner(t *testing.T, dialect relational.Dialect) (*Provisioner, sqlmock.Sqlmock, *testutil.MockLogger) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	log := &testutil.MockLogger{}
	p, err := NewProvisioner(db, dialect, testScripts, "ddl", testVars, log)
	if err != nil {
		t.Fatalf("NewProvisioner() error = %v", err)
	}
	return p, mock, log
}

func TestNewProvisioner_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tests := []struct {
		name    string
		build   func() (*Provisioner, error)
		wantErr string
	}{
		{"nil db", func() (*Provisioner, error) { return NewProvisioner(nil, "", testScripts, "ddl", testVars, nil) }, "database handle"},
		{"nil fs", func() (*Provisioner, error) { return NewProvisioner(db, "", nil, "ddl", testVars, nil) }, "filesystem"},
		{"blank dir", func() (*Provisioner, error) { return NewProvisioner(db, "", testScripts, " ", testVars, nil) }, "directory is required"},
		{"missing dir", func() (*Provisioner, error) { return NewProvisioner(db, "", testScripts, "nope", testVars, nil) }, "read schema directory"},
		{"no scripts", func() (*Provisioner, error) {
			return NewProvisioner(db, "", fstest.MapFS{"ddl/a.txt": {Data: []byte("x")}}, "ddl", testVars, nil)
		}, "no schema scripts"},
		{"empty script", func() (*Provisioner, error) {
			return NewProvisioner(db, "", fstest.MapFS{"ddl/a.sql": {Data: []byte(" ;\n;")}}, "ddl", testVars, nil)
		}, "is empty"},
		{"unknown variable", func() (*Provisioner, error) { return NewProvisioner(db, "", testScripts, "ddl", nil, nil) }, "render schema file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.build()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) || p != nil {
				t.Errorf("NewProvisioner() = %v, %v, want error containing %q", p, err, tt.wantErr)
			}
		})
	}
}

func TestProvisioner_Scripts(t *testing.T) {
	p, _, _ := newProvisioner(t, "")

	scripts := p.Scripts()
	var names []string
	for _, s := range scripts {
		names = append(names, s.Name)
	}
	if !reflect.DeepEqual(names, []string{"01_products.sql", "02_brands.sql"}) {
		t.Errorf("scripts = %v", names)
	}
	statements := scripts[0].Statements()
	if len(statements) != 2 || statements[1] != "CREATE INDEX IF NOT EXISTS products_name ON products (name)" {
		t.Errorf("statements = %q", statements)
	}
	if p.Dialect() != relational.DialectPostgres {
		t.Errorf("Dialect() = %q, want postgres by default", p.Dialect())
	}
}

func TestProvisioner_Apply(t *testing.T) {
	p, mock, log := newProvisioner(t, relational.DialectPostgres)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS products")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS products_name")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS brands")).WillReturnResult(sqlmock.NewResult(0, 0))

	executed, err := p.Apply(context.Background())
	if err != nil || executed != 3 {
		t.Fatalf("Apply() = %d, %v, want 3 statements", executed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	if !log.Has("info", "schema applied") {
		t.Error("expected apply to be logged")
	}
}

func TestProvisioner_ApplyStopsAtFirstFailure(t *testing.T) {
	p, mock, _ := newProvisioner(t, relational.DialectMySQL)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS products")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX")).WillReturnError(errors.New("duplicate key name"))

	executed, err := p.Apply(context.Background())
	if executed != 1 || err == nil || !strings.Contains(err.Error(), "01_products.sql statement 2") {
		t.Errorf("Apply() = %d, %v", executed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestProvisioner_Check(t *testing.T) {
	tests := []struct {
		name    string
		dialect relational.Dialect
		query   string
		present []string
		missing []string
	}{
		{
			name:    "postgres complete",
			dialect: relational.DialectPostgres,
			query:   "WHERE table_schema = current_schema() AND table_name = $1",
			present: []string{"id", "NAME"},
		},
		{
			name:    "mysql missing column",
			dialect: relational.DialectMySQL,
			query:   "WHERE table_schema = DATABASE() AND table_name = ?",
			present: []string{"id"},
			missing: []string{"name"},
		},
		{
			name:    "table absent",
			dialect: relational.DialectPostgres,
			query:   "information_schema.columns",
			missing: []string{"id", "name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock, _ := newProvisioner(t, tt.dialect)
			rows := sqlmock.NewRows([]string{"column_name"})
			for _, c := range tt.present {
				rows.AddRow(c)
			}
			mock.ExpectQuery(regexp.QuoteMeta(tt.query)).WithArgs("products").WillReturnRows(rows)

			report, err := p.Check(context.Background(), "products", []string{"id", "name"})
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if !reflect.DeepEqual(report.Missing, tt.missing) || report.OK() != (len(tt.missing) == 0) {
				t.Errorf("Check() = %+v, want missing %v", report, tt.missing)
			}
		})
	}
}

func TestProvisioner_CheckQueryError(t *testing.T) {
	p, mock, _ := newProvisioner(t, relational.DialectPostgres)
	mock.ExpectQuery("information_schema").WillReturnError(errors.New("permission denied"))

	if _, err := p.Check(context.Background(), "products", []string{"id"}); err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Check() error = %v", err)
	}
}
