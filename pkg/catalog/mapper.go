package catalog

import (
	"database/sql"
)

var productColumns = []string{
	FieldID,
	FieldName,
	FieldDescription,
	FieldPrice,
	FieldPictureURL,
	FieldType,
	FieldBrand,
	FieldQuantityInStock,
	FieldPartitionKey,
}

// ProductMapper maps products to rows of the products table.
type ProductMapper struct{}

// Columns lists the product columns in scan order.
func (ProductMapper) Columns() []string {
	return productColumns
}

// PartitionColumn names the column holding the partition key.
func (ProductMapper) PartitionColumn() string {
	return FieldPartitionKey
}

// ToRow returns every column, id first.
func (ProductMapper) ToRow(p Product) ([]string, []any, error) {
	return productColumns, []any{
		p.ID,
		p.Name,
		p.Description,
		p.Price,
		p.PictureURL,
		p.Type,
		p.Brand,
		p.QuantityInStock,
		p.PartitionKey,
	}, nil
}

// FromRow scans the current row.
func (ProductMapper) FromRow(rows *sql.Rows) (Product, error) {
	var (
		p           Product
		description sql.NullString
		pictureURL  sql.NullString
	)
	err := rows.Scan(
		&p.ID,
		&p.Name,
		&description,
		&p.Price,
		&pictureURL,
		&p.Type,
		&p.Brand,
		&p.QuantityInStock,
		&p.PartitionKey,
	)
	p.Description = description.String
	p.PictureURL = pictureURL.String
	return p, err
}
