package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nullstride/archivist/internal/output"
	"github.com/nullstride/archivist/internal/store"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ingestion and query statistics",
		Long:  `Display ingest activity and query performance recorded by the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type statsOutput struct {
	Ingest *store.IngestStats `json:"ingest"`
	Query  *store.QueryStats  `json:"query"`
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	pp, err := resolveProject(".")
	if err != nil {
		return err
	}

	registry, err := store.OpenRegistry(filepath.Join(pp.dataDir, metadataFileName))
	if err != nil {
		return fmt.Errorf("no index found: %w (run 'archivist index' first)", err)
	}
	defer func() { _ = registry.Close() }()

	ingest, err := registry.IngestStats(ctx)
	if err != nil {
		return fmt.Errorf("read ingest stats: %w", err)
	}
	query, err := registry.QueryStats(ctx)
	if err != nil {
		return fmt.Errorf("read query stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statsOutput{Ingest: ingest, Query: query})
	}

	out := output.New(cmd.OutOrStdout())
	out.Status("📋", "Ingest")
	out.Statusf("", "  Added:   %d", ingest.Added)
	out.Statusf("", "  Updated: %d", ingest.Updated)
	out.Statusf("", "  Removed: %d", ingest.Removed)
	if !ingest.LastIngestAt.IsZero() {
		out.Statusf("", "  Last:    %s", ingest.LastIngestAt.Format("2006-01-02 15:04:05"))
	}
	out.Newline()

	out.Status("📋", "Query")
	out.Statusf("", "  Count:        %d", query.QueryCount)
	out.Statusf("", "  Reloads:      %d", query.ReloadCount)
	out.Statusf("", "  Avg response: %s", query.AvgResponseTime)
	out.Statusf("", "  Cache hits:   %d", query.CacheHits)
	out.Statusf("", "  Cache misses: %d", query.CacheMisses)

	if len(ingest.LastErrors) > 0 {
		out.Newline()
		out.Warning("Recent ingest errors:")
		for _, e := range ingest.LastErrors {
			out.Statusf("", "  - %s: %s", e.Path, e.Err)
		}
	}

	return nil
}
