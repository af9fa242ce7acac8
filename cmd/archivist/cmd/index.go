package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nullstride/archivist/internal/output"
)

func newIndexCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or refresh the index for a directory",
		Long: `Scan a directory, extract and chunk its supported files, and build
both the BM25 and vector indices used by 'archivist search'.

This is a one-shot bulk pass; use 'archivist serve' to also keep the
index current as files change.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if backend != "" {
				os.Setenv("ARCHIVIST_EMBEDDER", backend)
			}
			return runIndex(ctx, cmd, path)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: ollama (default), mlx, or static")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string) error {
	out := output.New(cmd.OutOrStdout())

	pp, err := resolveProject(path)
	if err != nil {
		return err
	}
	cleanupLog := setupFileLogging(pp.dataDir)
	defer cleanupLog()

	cfg := loadConfig(pp.root)

	ic, err := buildIngestComponents(ctx, pp, cfg)
	if err != nil {
		return fmt.Errorf("initialize index: %w", err)
	}
	defer ic.Close()

	out.Statusf("🔍", "Indexing %s", pp.root)

	if err := ic.manager.BulkScan(ctx, cfg.Watch.ExcludePatterns, cfg.Extract.MaxFileSize, cfg.Index.MaxWorkers); err != nil {
		return fmt.Errorf("bulk scan: %w", err)
	}

	stats, err := ic.registry.IngestStats(ctx)
	if err == nil {
		out.Successf("Indexed %d documents (%d updated, %d removed)", stats.Added, stats.Updated, stats.Removed)
	} else {
		out.Success("Indexing complete")
	}

	return nil
}
