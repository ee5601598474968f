package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"

	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/repository/relational"
	"github.com/nimburion/catalog/pkg/schema"
	"github.com/nimburion/catalog/pkg/store"
	"github.com/nimburion/catalog/pkg/store/mysql"
	"github.com/nimburion/catalog/pkg/store/postgres"
)

//go:embed ddl
var ddlFiles embed.FS

// ErrNoSchema is returned by NewSchemaProvisioner for document stores, which need no schema.
var ErrNoSchema = errors.New("storage adapter has no managed schema")

// NewSchemaProvisioner returns the DDL creating the products table named table for a
// relational adapter.
func NewSchemaProvisioner(adapter store.Adapter, table string, log logger.Logger) (*schema.Provisioner, error) {
	vars := map[string]string{"Table": table}
	switch a := adapter.(type) {
	case *postgres.Adapter:
		return schema.NewProvisioner(a.DB(), relational.DialectPostgres, ddlFiles, path.Join("ddl", "postgres"), vars, log)
	case *mysql.Adapter:
		return schema.NewProvisioner(a.DB(), relational.DialectMySQL, ddlFiles, path.Join("ddl", "mysql"), vars, log)
	default:
		return nil, fmt.Errorf("%w: %T", ErrNoSchema, adapter)
	}
}

// CheckProductsTable reports the product columns missing from table.
func CheckProductsTable(ctx context.Context, p *schema.Provisioner, table string) (schema.Report, error) {
	return p.Check(ctx, table, productColumns)
}
