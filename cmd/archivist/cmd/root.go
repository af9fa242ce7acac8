// Package cmd provides the Archivist CLI commands.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nullstride/archivist/pkg/version"
)

// NewRootCmd creates the root command for the archivist CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archivist",
		Short: "Hybrid BM25 + vector search over a document tree",
		Long: `Archivist indexes a directory of text, markdown, and PDF files and
serves hybrid search (lexical BM25 + semantic vector) over it, fusing
both rankings with Reciprocal Rank Fusion.

Run 'archivist index' once to build the index, then 'archivist search'
for one-shot queries, or 'archivist serve' to keep it up to date as
files change.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("archivist version {{.Version}}\n")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
