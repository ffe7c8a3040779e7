package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/purchase-tracker/internal/observability"
)

var checkPricesCmd = &cobra.Command{
	Use:   "check-prices",
	Short: "Re-check every tracked item's price once",
	RunE:  runCheckPrices,
}

func init() {
	rootCmd.AddCommand(checkPricesCmd)
}

func runCheckPrices(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.prices.CheckAll(cmd.Context())
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintSweepResult(res)
	return nil
}
