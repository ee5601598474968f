package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/catalog/pkg/repository/document"
	"github.com/nimburion/catalog/pkg/store/mysql"
	"github.com/nimburion/catalog/pkg/store/postgres"
	"github.com/nimburion/catalog/pkg/testutil"
)

func TestNewSchemaProvisioner(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	log := &testutil.MockLogger{}

	pg, err := NewSchemaProvisioner(postgres.NewAdapterFromDB(db, postgres.Config{}, log), "catalog_items", log)
	if err != nil {
		t.Fatalf("postgres NewSchemaProvisioner() error = %v", err)
	}
	my, err := NewSchemaProvisioner(mysql.NewAdapterFromDB(db, mysql.Config{}, log), "catalog_items", log)
	if err != nil {
		t.Fatalf("mysql NewSchemaProvisioner() error = %v", err)
	}

	pgScripts, myScripts := pg.Scripts(), my.Scripts()
	if len(pgScripts) != 1 || len(myScripts) != 1 {
		t.Fatalf("scripts = %d postgres, %d mysql, want 1 each", len(pgScripts), len(myScripts))
	}
	if stmts := pgScripts[0].Statements(); len(stmts) != 2 || !strings.Contains(stmts[0], "DOUBLE PRECISION") {
		t.Errorf("postgres statements = %q", stmts)
	}
	if stmts := myScripts[0].Statements(); len(stmts) != 1 || !strings.Contains(stmts[0], "VARCHAR") {
		t.Errorf("mysql statements = %q", stmts)
	}
	for _, script := range []string{pgScripts[0].SQL, myScripts[0].SQL} {
		if !strings.Contains(script, "CREATE TABLE IF NOT EXISTS catalog_items (") || strings.Contains(script, "{{") {
			t.Errorf("table name not rendered: %s", script)
		}
		for _, column := range productColumns {
			if !strings.Contains(script, column) {
				t.Errorf("schema is missing column %q", column)
			}
		}
	}

	if _, err := NewSchemaProvisioner(document.NewMemoryStore(), "products", log); !errors.Is(err, ErrNoSchema) {
		t.Errorf("memory NewSchemaProvisioner() error = %v, want ErrNoSchema", err)
	}
}

func TestCheckProductsTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	p, err := NewSchemaProvisioner(postgres.NewAdapterFromDB(db, postgres.Config{}, nil), "products", nil)
	if err != nil {
		t.Fatal(err)
	}
	rows := sqlmock.NewRows([]string{"column_name"})
	for _, column := range productColumns {
		if column != FieldPartitionKey {
			rows.AddRow(column)
		}
	}
	mock.ExpectQuery(regexp.QuoteMeta("information_schema.columns")).WithArgs("products").WillReturnRows(rows)

	report, err := CheckProductsTable(context.Background(), p, "products")
	if err != nil {
		t.Fatal(err)
	}
	if report.OK() || len(report.Missing) != 1 || report.Missing[0] != FieldPartitionKey {
		t.Errorf("report = %+v, want %s missing", report, FieldPartitionKey)
	}
}
