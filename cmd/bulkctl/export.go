package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"bulkload/internal/aws"
	"bulkload/internal/controller"
	"bulkload/internal/orchestrator"

	"github.com/spf13/cobra"
)

type exportOptions struct {
	output  string
	archive bool
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export <jobId>",
		Short: "Export the failed records of a job as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, db, err := connect(root)
			if err != nil {
				return err
			}
			defer db.Close(ctx)

			var files aws.FileService
			if opts.archive {
				if !cfg.S3.Enabled {
					return controller.ErrArchiveDisabled
				}
				if files, err = aws.NewFileService(ctx, cfg.S3); err != nil {
					return err
				}
			}

			pipeline := orchestrator.NewPipeline(db, nil, orchestrator.OptionsFromConfig(cfg.Ingest))
			rc := controller.NewRecordsController(db, pipeline, files)

			if opts.archive {
				url, err := rc.ArchiveFailedRecords(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			}

			// a job without failures must not leave an empty file behind
			var buf bytes.Buffer
			if err := rc.ExportFailedRecords(ctx, args[0], &buf); err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			_, err = buf.WriteTo(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "Upload the export to S3 and print its URL")
	return cmd
}
