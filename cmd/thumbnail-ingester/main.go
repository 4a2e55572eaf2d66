package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/thumbnailflow/internal/config"
	"github.com/Lllllllleong/thumbnailflow/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and maps the outcome to a process exit code: 0 for a
// completed pass (even with record or batch errors logged), 1 otherwise.
func run(args []string) int {
	logLevel := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cmd := newRootCmd(logLevel)
	cmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("Ingestion failed.", "error", err)
		return 1
	}
	return 0
}

func newRootCmd(logLevel *slog.LevelVar) *cobra.Command {
	var (
		sourceFlag string
		batchSize  int
	)

	cmd := &cobra.Command{
		Use:   "thumbnail-ingester",
		Short: "Stream a CSV of image URLs into stored thumbnails",
		Long: "Reads index,id,url rows from a CSV (local path, gs:// or s3://), fetches each image, " +
			"scales it to a fixed-size JPEG thumbnail and upserts the result by id.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("source") {
				cfg.Source = sourceFlag
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logLevel.Set(cfg.LogLevel)

			ctx := cmd.Context()
			p, err := pipeline.New(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := p.Close(); cerr != nil {
					slog.Warn("Failed to close pipeline clients.", "error", cerr)
				}
			}()

			summary, err := p.Run(ctx, cfg.Source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingestion complete: %d processed, %d errors, %d skipped.\n",
				summary.Processed, summary.Errors, summary.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceFlag, "source", config.DefaultSource, "CSV location: path, gs://bucket/object or s3://bucket/key (overrides SOURCE)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per batch (overrides DEFAULT_BATCH_SIZE)")
	return cmd
}
