package catalog

import "strings"

// SortKey selects the product ordering.
type SortKey string

const (
	// SortDefault orders by name ascending.
	SortDefault   SortKey = ""
	SortPriceAsc  SortKey = "priceAsc"
	SortPriceDesc SortKey = "priceDesc"
)

// ParseSortKey matches raw case-insensitively. Unknown keys map to SortDefault.
func ParseSortKey(raw string) SortKey {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "priceasc":
		return SortPriceAsc
	case "pricedesc":
		return SortPriceDesc
	default:
		return SortDefault
	}
}

// QueryParams are the caller-supplied product query parameters. PageIndex is 1-based.
type QueryParams struct {
	Brands    []string
	Types     []string
	Search    string
	Sort      SortKey
	PageIndex int
	PageSize  int
}

// Normalize clamps paging: PageIndex is at least 1, a non-positive PageSize becomes
// defaultPageSize and PageSize never exceeds maxPageSize.
func (p QueryParams) Normalize(defaultPageSize, maxPageSize int) QueryParams {
	if p.PageIndex < 1 {
		p.PageIndex = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if maxPageSize > 0 && p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

// SplitList splits comma-separated values, as passed on a query string or command line.
// Canonicalisation happens in NewProductSpecification.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
