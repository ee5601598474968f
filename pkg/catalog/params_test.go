package catalog

import (
	"reflect"
	"testing"
)

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		raw  string
		want SortKey
	}{
		{"", SortDefault},
		{"priceAsc", SortPriceAsc},
		{"PRICEASC", SortPriceAsc},
		{" priceDesc ", SortPriceDesc},
		{"pricedesc", SortPriceDesc},
		{"name", SortDefault},
		{"price", SortDefault},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseSortKey(tt.raw); got != tt.want {
				t.Errorf("ParseSortKey(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestQueryParams_Normalize(t *testing.T) {
	tests := []struct {
		name          string
		in            QueryParams
		wantPageIndex int
		wantPageSize  int
	}{
		{"zero values get defaults", QueryParams{}, 1, 6},
		{"negative index", QueryParams{PageIndex: -3, PageSize: 10}, 1, 10},
		{"negative size", QueryParams{PageIndex: 2, PageSize: -1}, 2, 6},
		{"size above max is clamped", QueryParams{PageIndex: 4, PageSize: 500}, 4, 50},
		{"valid values are kept", QueryParams{PageIndex: 3, PageSize: 12}, 3, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize(6, 50)
			if got.PageIndex != tt.wantPageIndex || got.PageSize != tt.wantPageSize {
				t.Errorf("Normalize() = index %d size %d, want index %d size %d",
					got.PageIndex, got.PageSize, tt.wantPageIndex, tt.wantPageSize)
			}
		})
	}
}

func TestQueryParams_NormalizeKeepsFilters(t *testing.T) {
	in := QueryParams{Brands: []string{"Angular"}, Types: []string{"Boots"}, Search: "ang", Sort: SortPriceAsc}
	got := in.Normalize(6, 50)
	if !reflect.DeepEqual(got.Brands, in.Brands) || !reflect.DeepEqual(got.Types, in.Types) ||
		got.Search != in.Search || got.Sort != in.Sort {
		t.Errorf("Normalize() changed filters: %+v", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList("Angular,React", "", "Vue")
	want := []string{"Angular", "React", "", "Vue"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitList() = %q, want %q", got, want)
	}
	if got := SplitList(); got != nil {
		t.Errorf("SplitList() with no input = %q, want nil", got)
	}
}
