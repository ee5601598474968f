package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nimburion/catalog/pkg/catalog"
)

func newProductsCommand(env *environment) *cobra.Command {
	productsCmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"items"},
		Short:   "Query and edit the product catalog",
	}
	SetCommandPolicies(productsCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})

	productsCmd.AddCommand(
		newListCommand(env),
		newCountCommand(env),
		newGetCommand(env),
		newDistinctCommand(env, "brands", "List distinct product brands", (*catalog.Service).Brands),
		newDistinctCommand(env, "types", "List distinct product types", (*catalog.Service).Types),
		newWriteCommand(env, "create <file>", "Create a product from a JSON file (- reads stdin)", (*catalog.Service).CreateProduct),
		newWriteCommand(env, "update <file>", "Replace a product from a JSON file (- reads stdin)", (*catalog.Service).UpdateProduct),
		newDeleteCommand(env),
	)
	for _, sub := range productsCmd.Commands() {
		SetCommandPolicies(sub, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})
	}
	return productsCmd
}

// queryFlags are the product filter flags shared by list and count.
type queryFlags struct {
	brands    []string
	types     []string
	search    string
	sort      string
	pageIndex int
	pageSize  int
}

func (f *queryFlags) register(cmd *cobra.Command, paging bool) {
	cmd.Flags().StringSliceVar(&f.brands, "brand", nil, "brands to include (repeatable or comma-separated)")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "types to include (repeatable or comma-separated)")
	cmd.Flags().StringVar(&f.search, "search", "", "substring of name (as typed or title-cased)")
	if !paging {
		return
	}
	cmd.Flags().StringVar(&f.sort, "sort", "", "ordering: priceAsc, priceDesc (default: name)")
	cmd.Flags().IntVar(&f.pageIndex, "page-index", 1, "1-based page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "page size (default: catalog.default_page_size)")
}

func (f *queryFlags) params() catalog.QueryParams {
	return catalog.QueryParams{
		Brands:    catalog.SplitList(f.brands...),
		Types:     catalog.SplitList(f.types...),
		Search:    f.search,
		Sort:      catalog.ParseSortKey(f.sort),
		PageIndex: f.pageIndex,
		PageSize:  f.pageSize,
	}
}

func newListCommand(env *environment) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, rt *runtime) error {
				page, err := rt.service.ListProducts(ctx, flags.params())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newCountCommand(env *environment) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count products matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, rt *runtime) error {
				count, err := rt.service.CountProducts(ctx, flags.params())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), count)
				return err
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newGetCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, rt *runtime) error {
				product, found, err := rt.service.GetProduct(ctx, id)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("product %d not found", id)
				}
				return writeJSON(cmd.OutOrStdout(), product)
			})
		},
	}
}

func newDistinctCommand(env *environment, use, short string, distinct func(*catalog.Service, context.Context) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, rt *runtime) error {
				values, err := distinct(rt.service, ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), values)
			})
		},
	}
}

func newWriteCommand(env *environment, use, short string, write func(*catalog.Service, context.Context, catalog.Product) (catalog.Product, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := readProduct(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, rt *runtime) error {
				saved, err := write(rt.service, ctx, product)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), saved)
			})
		},
	}
}

func newDeleteCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product; deleting a missing product is not an error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, rt *runtime) error {
				deleted, err := rt.service.DeleteProduct(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"id": id, "deleted": deleted})
			})
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", raw)
	}
	return id, nil
}

func readProduct(stdin io.Reader, path string) (catalog.Product, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return catalog.Product{}, fmt.Errorf("open product file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var product catalog.Product
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&product); err != nil {
		return catalog.Product{}, fmt.Errorf("decode product: %w", err)
	}
	return product, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
