// Command catalog queries and maintains the product catalog.
package main

import "github.com/nimburion/catalog/pkg/cli"

func main() {
	cli.Execute(cli.NewCatalogCommand(cli.CatalogCommandOptions{
		Name:        "catalog",
		Description: "Query and maintain the product catalog",
	}))
}
