package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nimburion/catalog/pkg/specification"
)

// NewProductSpecification builds the product query for params.
//
// Brands match exactly. Types are title-cased before matching. A search term matches names
// containing it as given or title-cased; no further case folding is done, so "ang" finds
// "Angular" and "Django" but not "BANG". Results are ordered by price for the price sort
// keys and by name otherwise, and are always paged. Callers clamp paging with
// QueryParams.Normalize first.
func NewProductSpecification(params QueryParams) *specification.Specification[Product] {
	var brandFilter, typeFilter, searchFilter specification.Node

	if brands := canonical(params.Brands, nil); len(brands) > 0 {
		brandFilter = specification.In(FieldBrand, brands...)
	}
	if types := canonical(params.Types, TitleCase); len(types) > 0 {
		typeFilter = specification.In(FieldType, types...)
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		variants := []specification.Node{specification.Contains(FieldName, search)}
		if titled := TitleCase(search); titled != search {
			variants = append(variants, specification.Contains(FieldName, titled))
		}
		searchFilter = specification.AnyOf(variants...)
	}

	spec := specification.New[Product](specification.AllOf(brandFilter, typeFilter, searchFilter))

	switch params.Sort {
	case SortPriceAsc:
		spec.AddOrderBy(FieldPrice)
	case SortPriceDesc:
		spec.AddOrderByDescending(FieldPrice)
	default:
		spec.AddOrderBy(FieldName)
	}

	return spec.ApplyPaging(specification.PageSkip(params.PageIndex, params.PageSize), params.PageSize)
}

// BrandsSpecification projects the distinct brands, ordered by brand.
func BrandsSpecification() *specification.Projection[Product, string] {
	spec := specification.New[Product](nil).AddOrderBy(FieldBrand).MarkDistinct()
	return specification.NewProjection(spec, func(p Product) string { return p.Brand }).OfField(FieldBrand)
}

// TypesSpecification projects the distinct types, ordered by type.
func TypesSpecification() *specification.Projection[Product, string] {
	spec := specification.New[Product](nil).AddOrderBy(FieldType).MarkDistinct()
	return specification.NewProjection(spec, func(p Product) string { return p.Type }).OfField(FieldType)
}

// TitleCase upper-cases the first rune of s and lower-cases the rest.
func TitleCase(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if first == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:])
}

// canonical trims values, drops empty ones, applies transform and removes duplicates,
// keeping the first occurrence.
func canonical(values []string, transform func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if transform != nil {
			v = transform(v)
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
