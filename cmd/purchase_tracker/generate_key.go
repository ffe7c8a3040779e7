package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/purchase-tracker/internal/secrets"
)

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Print a new CREDENTIALS_KEY for encrypting provider credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := secrets.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateKeyCmd)
}
