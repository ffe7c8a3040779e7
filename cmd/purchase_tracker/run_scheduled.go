package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/observability"
	"github.com/jonathan/purchase-tracker/internal/types"
)

var runScheduledCmd = &cobra.Command{
	Use:   "run-scheduled",
	Short: "Run one scheduled ingestion in this process and follow its events",
	Long: `Start a scheduled ingestion for every opted-in user, print its events as
they happen and a summary once it finishes. Fails with a conflict when a
scheduled run is already active.`,
	RunE: runScheduled,
}

func init() {
	rootCmd.AddCommand(runScheduledCmd)
}

func runScheduled(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	id, startErr := a.orchestrator.Start(ctx, jobs.StartRequest{
		Kind:      types.JobKindScheduled,
		Automated: true,
	})
	if err := a.streamer.Stream(ctx, printer, id, startErr); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}
	a.orchestrator.Wait()

	job, err := a.db.Jobs().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	printer.PrintJobSummary(job)
	if job.Status == types.JobStatusFailed {
		return fmt.Errorf("scheduled ingestion failed")
	}
	return nil
}
