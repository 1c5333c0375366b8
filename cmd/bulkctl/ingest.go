package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bulkload/internal/config"
	"bulkload/internal/model"
	"bulkload/internal/orchestrator"
	"bulkload/internal/processor"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type ingestOptions struct {
	batchSize int
	throttle  time.Duration
	policy    string
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file.csv>",
		Short: "Ingest a CSV file in-process, bypassing the job queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Records per batch (default from config)")
	cmd.Flags().DurationVar(&opts.throttle, "throttle", orchestrator.DefaultThrottle, "Pause between batches")
	cmd.Flags().StringVar(&opts.policy, "placeholder-policy", "", "synthesize or reject rows missing a store name or address")

	return cmd
}

// validatePolicy accepts an empty flag, meaning the configured policy applies
func validatePolicy(policy string) error {
	switch policy {
	case "", config.PlaceholderSynthesize, config.PlaceholderReject:
		return nil
	}
	return fmt.Errorf("unknown --placeholder-policy %q, want %s or %s", policy, config.PlaceholderSynthesize, config.PlaceholderReject)
}

func runIngest(cmd *cobra.Command, root *rootOptions, opts ingestOptions, path string) error {
	ctx := cmd.Context()

	if err := validatePolicy(opts.policy); err != nil {
		return err
	}

	cfg, db, err := connect(root)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	pipelineOpts := orchestrator.OptionsFromConfig(cfg.Ingest)
	if opts.batchSize > 0 {
		pipelineOpts.BatchSize = opts.batchSize
	}
	if cmd.Flags().Changed("throttle") {
		pipelineOpts.Throttle = opts.throttle
	}
	if opts.policy != "" {
		pipelineOpts.PlaceholderPolicy = processor.PlaceholderPolicy(opts.policy)
	}

	// The pipeline removes its input when done, so it works on a copy
	work, err := copyToUploadDir(path, cfg.Ingest.UploadDir)
	if err != nil {
		return err
	}

	job := &model.Job{
		JobID:    uuid.NewString(),
		FileName: filepath.Base(path),
		Status:   model.StatusQueued,
	}
	if err := db.CreateJob(ctx, job); err != nil {
		return err
	}

	pipeline := orchestrator.NewPipeline(db, progressPrinter{out: cmd.ErrOrStderr()}, pipelineOpts)
	result, err := pipeline.Run(ctx, model.Task{
		JobID:     job.JobID,
		FilePath:  work,
		FileName:  job.FileName,
		ChannelID: job.JobID,
	})
	if err != nil {
		return fmt.Errorf("job %s: %w", job.JobID, err)
	}

	log.Info().
		Str("jobId", job.JobID).
		Int("total", result.TotalRecords).
		Int("inserted", result.TotalInserted).
		Int("failed", result.FailedCount).
		Int("successRate", result.SuccessRate).
		Msg("Ingestion finished")
	fmt.Fprintln(cmd.OutOrStdout(), job.JobID)
	return nil
}

func copyToUploadDir(path, dir string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dst, err := os.CreateTemp(dir, "bulkctl-*-"+filepath.Base(path))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// progressPrinter renders job events on a terminal
type progressPrinter struct {
	out io.Writer
}

func (p progressPrinter) Notify(channelID, event string, payload any) {
	switch ev := payload.(type) {
	case model.ProgressEvent:
		fmt.Fprintf(p.out, "%3d%%  %d/%d processed, %d failed, %d rec/s\n",
			ev.Progress, ev.ProcessedRecords, ev.TotalRecords, ev.FailedRecords, ev.ProcessingSpeed)
	case model.CompletionEvent:
		fmt.Fprintf(p.out, "done  %s\n", ev.Message)
	case model.ErrorEvent:
		fmt.Fprintf(p.out, "error %s: %s\n", ev.Message, ev.Error)
	}
}
