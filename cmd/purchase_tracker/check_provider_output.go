package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/purchase-tracker/internal/provider"
	"github.com/jonathan/purchase-tracker/internal/schemas"
	schemafiles "github.com/jonathan/purchase-tracker/schemas"
)

var checkProviderOutputCmd = &cobra.Command{
	Use:   "check-provider-output <file>",
	Short: "Validate an order provider's JSON output against the orders schema",
	Long: `Validate a file produced by an order provider command. Prints the number
of orders and items it would import, or the schema violations. With
--schema the file is only checked against that schema file.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckProviderOutput,
}

var providerSchemaPath string

func init() {
	checkProviderOutputCmd.Flags().StringVar(&providerSchemaPath, "schema", "", "Validate against this schema file instead of the embedded orders schema")
	rootCmd.AddCommand(checkProviderOutputCmd)
}

func runCheckProviderOutput(cmd *cobra.Command, args []string) error {
	if providerSchemaPath != "" {
		if err := schemas.ValidateJSON(providerSchemaPath, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	orders, err := provider.ParseOrders(schemafiles.MustLoad(schemafiles.Orders), data)
	if err != nil {
		return err
	}

	items := 0
	for _, o := range orders {
		items += len(o.Items)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d orders, %d items\n", len(orders), items)
	return nil
}
