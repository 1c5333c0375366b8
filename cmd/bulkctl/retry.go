package main

import (
	"fmt"

	"bulkload/internal/controller"
	"bulkload/internal/orchestrator"

	"github.com/spf13/cobra"
)

func newRetryCmd(root *rootOptions) *cobra.Command {
	var retriedBy string

	cmd := &cobra.Command{
		Use:   "retry <jobId>",
		Short: "Retry the failed records of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, db, err := connect(root)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			pipeline := orchestrator.NewPipeline(db, nil, orchestrator.OptionsFromConfig(cfg.Ingest))
			result, err := controller.NewRecordsController(db, pipeline, nil).RetryNow(ctx, args[0], retriedBy)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "retried %d: %d recovered, %d still failing, %d remaining\n",
				result.Retried, result.SuccessCount, result.FailedCount, result.Remaining)
			return nil
		},
	}

	cmd.Flags().StringVar(&retriedBy, "by", orchestrator.DefaultRetriedBy, "Name recorded in the retry history")
	return cmd
}
