package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nullstride/archivist/internal/output"
	"github.com/nullstride/archivist/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var backend string
	var skipBulkScan bool

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Watch a directory and keep the index current",
		Long: `Run a bulk scan (unless --skip-bulk-scan), then watch path for
filesystem changes, re-indexing each file as it is created, modified,
or deleted, until interrupted.`,
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
			return runServe(ctx, cmd, path, skipBulkScan)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: ollama (default), mlx, or static")
	cmd.Flags().BoolVar(&skipBulkScan, "skip-bulk-scan", false, "Skip the initial bulk scan and only watch for changes")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, path string, skipBulkScan bool) error {
	out := output.New(cmd.OutOrStdout())

	pp, err := resolveProject(path)
	if err != nil {
		return err
	}
	cleanupLog := setupFileLogging(pp.dataDir)
	defer cleanupLog()

	cfg := loadConfig(pp.root)

	sc, err := buildServeComponents(ctx, pp, cfg)
	if err != nil {
		return fmt.Errorf("initialize index: %w", err)
	}
	defer sc.Close()

	if !skipBulkScan {
		out.Statusf("🔍", "Indexing %s", pp.root)
		if err := sc.manager.BulkScan(ctx, cfg.Watch.ExcludePatterns, cfg.Extract.MaxFileSize, cfg.Index.MaxWorkers); err != nil {
			return fmt.Errorf("bulk scan: %w", err)
		}
		out.Success("Initial index complete")
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: cfg.Debounce.RebuildDelay,
		IgnorePatterns: cfg.Watch.ExcludePatterns,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	out.Statusf("👀", "Watching %s for changes (Ctrl+C to stop)", pp.root)

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx, pp.root) }()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			if err := sc.manager.Checkpoint(); err != nil {
				slog.Warn("final checkpoint failed", "err", err)
			}
			out.Status("🛑", "Stopped")
			return nil
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("watcher stopped: %w", err)
			}
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			dispatchBatch(ctx, sc, batch)
		case werr, ok := <-w.Errors():
			if ok {
				slog.Warn("watcher error", "err", werr)
			}
		}
	}
}

func dispatchBatch(ctx context.Context, sc *serveComponents, batch []watcher.FileEvent) {
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}

		var err error
		switch ev.Operation {
		case watcher.OpDelete:
			err = sc.manager.RemovePath(ctx, ev.Path, true)
		case watcher.OpRename:
			if ev.OldPath != "" {
				if rerr := sc.manager.RemovePath(ctx, ev.OldPath, false); rerr != nil {
					slog.Warn("remove old path failed", "path", ev.OldPath, "err", rerr)
				}
			}
			err = sc.manager.IngestPath(ctx, ev.Path, true)
		default:
			err = sc.manager.IngestPath(ctx, ev.Path, true)
		}

		if err != nil {
			slog.Warn("dispatch failed", "path", ev.Path, "op", ev.Operation.String(), "err", err)
		}
	}
}
