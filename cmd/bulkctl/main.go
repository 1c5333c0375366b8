package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bulkload/internal/config"
	"bulkload/internal/database"
	"bulkload/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("bulkctl failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "bulkctl",
		Short:         "Operate the store bulk loader from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("BULKLOAD_CONFIG_FILE"), "Path to the configuration file")

	cmd.AddCommand(
		newIngestCmd(&opts),
		newRetryCmd(&opts),
		newExportCmd(&opts),
	)
	return cmd
}

// connect loads configuration and opens the database
func connect(opts *rootOptions) (*config.Config, database.Database, error) {
	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	logging.Setup(cfg.Logging)

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
