package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/notify"
)

var webhookTimeout time.Duration

var testWebhookCmd = &cobra.Command{
	Use:   "test-webhook <url>",
	Short: "Send a synthetic price-drop payload to a webhook",
	Args:  cobra.ExactArgs(1),
	RunE:  runTestWebhook,
}

func init() {
	testWebhookCmd.Flags().DurationVar(&webhookTimeout, "timeout", 10*time.Second, "Delivery timeout")
	rootCmd.AddCommand(testWebhookCmd)
}

func runTestWebhook(cmd *cobra.Command, args []string) error {
	dispatcher := notify.NewDispatcher(webhookTimeout, logging.Nop())
	result := dispatcher.TestWebhook(cmd.Context(), args[0])

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Delivered {
		return fmt.Errorf("webhook delivery failed")
	}
	return nil
}
