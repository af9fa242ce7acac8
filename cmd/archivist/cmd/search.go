package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nullstride/archivist/internal/output"
	"github.com/nullstride/archivist/pkg/searcher"
)

type searchOptions struct {
	limit  int
	mode   string // hybrid, lexical, vector
	wLex   float64
	wVec   float64
	format string // text, json
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a one-shot query against the index",
		Long: `Search the index built by 'archivist index', fusing BM25 and vector
results with Reciprocal Rank Fusion.

Examples:
  archivist search "retry backoff policy"
  archivist search "connection pool" --mode lexical
  archivist search "auth flow" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: hybrid, lexical, vector")
	cmd.Flags().Float64Var(&opts.wLex, "w-lex", 0, "Lexical weight override (hybrid mode only, 0 = config default)")
	cmd.Flags().Float64Var(&opts.wVec, "w-vec", 0, "Vector weight override (hybrid mode only, 0 = config default)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	out := output.New(cmd.OutOrStdout())

	pp, err := resolveProject(".")
	if err != nil {
		return err
	}
	cleanupLog := setupFileLogging(pp.dataDir)
	defer cleanupLog()

	cfg := loadConfig(pp.root)

	api, cleanup, err := buildQueryAPI(ctx, pp, cfg)
	if err != nil {
		return fmt.Errorf("no usable index: %w (run 'archivist index' first)", err)
	}
	defer cleanup()

	mode, err := parseMode(opts.mode)
	if err != nil {
		return err
	}

	results, err := api.Search(ctx, query, mode, opts.limit, opts.wLex, opts.wVec)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		return formatSearchJSON(cmd, results)
	}
	return formatSearchText(out, query, results)
}

func parseMode(s string) (searcher.Mode, error) {
	switch strings.ToLower(s) {
	case "", "hybrid":
		return searcher.ModeHybrid, nil
	case "lexical", "lex", "bm25":
		return searcher.ModeLex, nil
	case "vector", "vec", "semantic":
		return searcher.ModeVector, nil
	default:
		return "", fmt.Errorf("invalid mode %q (use: hybrid, lexical, vector)", s)
	}
}

func formatSearchText(out *output.Writer, query string, results []searcher.SearchResult) error {
	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for _, r := range results {
		out.Statusf("", "%d. %s (score: %.3f, origin: %s)", r.Rank, r.Path, r.Score, r.Origin)
		if r.Snippet != "" {
			for _, line := range strings.Split(r.Snippet, "\n") {
				out.Status("", "   "+line)
			}
		}
		out.Newline()
	}

	return nil
}

func formatSearchJSON(cmd *cobra.Command, results []searcher.SearchResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
