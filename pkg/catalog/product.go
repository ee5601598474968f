// Package catalog holds the product entity, the product query builder and the service
// that runs catalog queries against the configured repository.
package catalog

import (
	"math"
	"math/rand/v2"
	"strings"
)

// Stored field names of a product. They are the AST field names, the JSON names and the
// relational column names.
const (
	FieldID              = "id"
	FieldName            = "name"
	FieldDescription     = "description"
	FieldPrice           = "price"
	FieldPictureURL      = "picture_url"
	FieldType            = "type"
	FieldBrand           = "brand"
	FieldQuantityInStock = "quantity_in_stock"
	FieldPartitionKey    = "partition_key"
)

// DefaultPartitionKey is assigned to new products without a brand.
const DefaultPartitionKey = "product"

// Product is a catalog item.
type Product struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	PictureURL      string  `json:"picture_url"`
	Type            string  `json:"type"`
	Brand           string  `json:"brand"`
	QuantityInStock int     `json:"quantity_in_stock"`
	PartitionKey    string  `json:"partition_key"`
}

// GetID returns the product id.
func (p Product) GetID() int64 { return p.ID }

// GetPartitionKey returns the key document stores route the product by.
func (p Product) GetPartitionKey() string { return p.PartitionKey }

// AssignPartitionKey prepares a new product for staging: a zero id gets a random
// positive id, and an empty partition key becomes the brand, or DefaultPartitionKey
// when there is no brand.
func AssignPartitionKey(p *Product) {
	if p.ID == 0 {
		p.ID = rand.Int64N(math.MaxInt32) + 1
	}
	if strings.TrimSpace(p.PartitionKey) != "" {
		return
	}
	if brand := strings.TrimSpace(p.Brand); brand != "" {
		p.PartitionKey = brand
		return
	}
	p.PartitionKey = DefaultPartitionKey
}
