package catalog

import (
	"context"
	"reflect"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nimburion/catalog/pkg/config"
	"github.com/nimburion/catalog/pkg/repository"
	"github.com/nimburion/catalog/pkg/repository/document"
	"github.com/nimburion/catalog/pkg/specification"
)

var sampleProducts = []Product{
	{ID: 1, Name: "Angular Boots", Price: 30, Type: "Boots", Brand: "Angular"},
	{ID: 2, Name: "Angular Gloves", Price: 10, Type: "Gloves", Brand: "Angular"},
	{ID: 3, Name: "React Boots", Price: 20, Type: "Boots", Brand: "React"},
	{ID: 4, Name: "React Hat", Price: 5, Type: "Hat", Brand: "React"},
	{ID: 5, Name: "Vue Boots", Price: 1, Type: "Boots", Brand: "Vue"},
	{ID: 6, Name: "Django Gloves", Price: 15, Type: "Gloves", Brand: "Django"},
	{ID: 7, Name: "BANG Hat", Price: 8, Type: "Hat", Brand: "Bang"},
	{ID: 8, Name: "Angular Gloves XL", Price: 10, Type: "Gloves", Brand: "Angular"},
}

// seededFactory returns a repository factory over a memory store holding sampleProducts.
func seededFactory(t testing.TB) RepositoryFactory {
	t.Helper()
	cfg := config.DefaultConfig().Database
	newRepo, err := NewRepositoryFactory(context.Background(), document.NewMemoryStore(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFactory() error = %v", err)
	}
	repo, err := newRepo()
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	for _, p := range sampleProducts {
		AssignPartitionKey(&p)
		repo.Add(p)
	}
	if _, err := repo.SaveAll(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return newRepo
}

func ids(products []Product) []int64 {
	out := make([]int64, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}

func TestNewProductSpecification_Criteria(t *testing.T) {
	tests := []struct {
		name   string
		params QueryParams
		want   specification.Node
	}{
		{
			name:   "no filters matches everything",
			params: QueryParams{},
			want:   nil,
		},
		{
			name:   "blank values are dropped",
			params: QueryParams{Brands: []string{" ", ""}, Types: []string{""}, Search: "  "},
			want:   nil,
		},
		{
			name:   "brands are trimmed and deduplicated in first-seen order",
			params: QueryParams{Brands: []string{" React", "Angular", "React "}},
			want:   specification.In(FieldBrand, "React", "Angular"),
		},
		{
			name:   "types are title-cased before deduplication",
			params: QueryParams{Types: []string{"boots", "BOOTS", "gloves"}},
			want:   specification.In(FieldType, "Boots", "Gloves"),
		},
		{
			name:   "search adds the title-cased variant",
			params: QueryParams{Search: " ang "},
			want: specification.Or{Children: []specification.Node{
				specification.Contains(FieldName, "ang"),
				specification.Contains(FieldName, "Ang"),
			}},
		},
		{
			name:   "title-cased search is not repeated",
			params: QueryParams{Search: "Ang"},
			want:   specification.Contains(FieldName, "Ang"),
		},
		{
			name:   "filters are combined with and",
			params: QueryParams{Brands: []string{"Angular"}, Types: []string{"boots"}},
			want: specification.And{Children: []specification.Node{
				specification.In(FieldBrand, "Angular"),
				specification.In(FieldType, "Boots"),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := NewProductSpecification(tt.params.Normalize(6, 50))
			if got := spec.Criteria(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Criteria() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNewProductSpecification_OrderAndPaging(t *testing.T) {
	tests := []struct {
		sort SortKey
		want specification.Order
	}{
		{SortDefault, specification.Order{Field: FieldName}},
		{SortPriceAsc, specification.Order{Field: FieldPrice}},
		{SortPriceDesc, specification.Order{Field: FieldPrice, Desc: true}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			spec := NewProductSpecification(QueryParams{Sort: tt.sort, PageIndex: 3, PageSize: 4})
			order, ok := spec.Order()
			if !ok || order != tt.want {
				t.Errorf("Order() = %+v, %v, want %+v", order, ok, tt.want)
			}
			skip, take, paged := spec.Paging()
			if !paged || skip != 8 || take != 4 {
				t.Errorf("Paging() = %d, %d, %v, want 8, 4, true", skip, take, paged)
			}
		})
	}
}

func TestBrandsAndTypesSpecification(t *testing.T) {
	brands := BrandsSpecification()
	if brands.Field != FieldBrand || !brands.IsDistinct() {
		t.Errorf("brands projection = field %q distinct %v", brands.Field, brands.IsDistinct())
	}
	if order, _ := brands.Order(); order != (specification.Order{Field: FieldBrand}) {
		t.Errorf("brands order = %+v", order)
	}

	types := TypesSpecification()
	if types.Field != FieldType || !types.IsDistinct() {
		t.Errorf("types projection = field %q distinct %v", types.Field, types.IsDistinct())
	}
	if got := types.Apply(sampleProducts[:3]); !reflect.DeepEqual(got, []string{"Boots", "Gloves"}) {
		t.Errorf("types.Apply() = %q", got)
	}
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"":        "",
		"ang":     "Ang",
		"ANGULAR": "Angular",
		"élan":    "Élan",
		"x":       "X",
	}
	for in, want := range tests {
		if got := TitleCase(in); got != want {
			t.Errorf("TitleCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProductSpecification_BrandTypeAndPriceScenario(t *testing.T) {
	repo, err := seededFactory(t)()
	if err != nil {
		t.Fatal(err)
	}

	params := QueryParams{
		Brands: []string{"Angular", "React"},
		Types:  []string{"Boots", "Gloves"},
		Sort:   ParseSortKey("priceAsc"),
	}.Normalize(6, 50)
	got, err := repo.List(context.Background(), NewProductSpecification(params))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if want := []int64{2, 8, 3, 1}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("List() ids = %v, want %v", ids(got), want)
	}
}

func TestProductSpecification_SearchScenario(t *testing.T) {
	repo, err := seededFactory(t)()
	if err != nil {
		t.Fatal(err)
	}

	got, err := repo.List(context.Background(), NewProductSpecification(QueryParams{Search: "ang"}.Normalize(6, 50)))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if want := []int64{1, 2, 8, 6}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("List() ids = %v, want %v (BANG Hat must not match)", ids(got), want)
	}
}

func TestProductSpecification_CountIgnoresPaging(t *testing.T) {
	repo, err := seededFactory(t)()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	paged := NewProductSpecification(QueryParams{Types: []string{"gloves"}, PageIndex: 1, PageSize: 1})
	unpaged := specification.New[Product](paged.Criteria())

	a, err := repo.Count(ctx, paged)
	if err != nil {
		t.Fatal(err)
	}
	b, err := repo.Count(ctx, unpaged)
	if err != nil {
		t.Fatal(err)
	}
	if a != 3 || a != b {
		t.Errorf("Count() paged = %d, unpaged = %d, want 3", a, b)
	}
}

func TestProductSpecification_ProjectedBrands(t *testing.T) {
	repo, err := seededFactory(t)()
	if err != nil {
		t.Fatal(err)
	}

	got, err := repository.ListProjected(context.Background(), repo, BrandsSpecification())
	if err != nil {
		t.Fatalf("ListProjected() error = %v", err)
	}
	want := []string{"Angular", "Bang", "Django", "React", "Vue"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("brands = %q, want %q", got, want)
	}
}

func TestProperty_ProductFiltersAndOrdering(t *testing.T) {
	brandPool := []string{"Angular", "React", "Vue", "Django", "Bang"}
	typePool := []string{"boots", "Gloves", "HAT"}
	sorts := []SortKey{SortDefault, SortPriceAsc, SortPriceDesc}
	newRepo := seededFactory(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("results honour brand and type filters and are ordered by the sort key", prop.ForAll(
		func(brandIdx, typeIdx []int, sortIdx int) bool {
			params := QueryParams{Sort: sorts[sortIdx]}
			for _, i := range brandIdx {
				params.Brands = append(params.Brands, brandPool[i])
			}
			for _, i := range typeIdx {
				params.Types = append(params.Types, typePool[i])
			}

			repo, err := newRepo()
			if err != nil {
				return false
			}
			got, err := repo.List(context.Background(), NewProductSpecification(params.Normalize(50, 50)))
			if err != nil {
				return false
			}

			for _, p := range got {
				if len(params.Brands) > 0 && !slices.Contains(params.Brands, p.Brand) {
					return false
				}
				if len(params.Types) > 0 && !slices.Contains(canonical(params.Types, TitleCase), p.Type) {
					return false
				}
			}
			for i := 1; i < len(got); i++ {
				prev, cur := got[i-1], got[i]
				switch params.Sort {
				case SortPriceAsc:
					if prev.Price > cur.Price {
						return false
					}
				case SortPriceDesc:
					if prev.Price < cur.Price {
						return false
					}
				default:
					if prev.Name > cur.Name {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(brandPool)-1)),
		gen.SliceOf(gen.IntRange(0, len(typePool)-1)),
		gen.IntRange(0, len(sorts)-1),
	))

	properties.TestingRun(t)
}
