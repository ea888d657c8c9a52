package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
	"github.com/harun/memdex/internal/tracing"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Apply workspace changes to the index",
	Long: `Compare the workspace against the file index and re-index added or
modified memory files, dropping the chunks of deleted ones.`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	stats, err := d.GetIndexer().Update(tracing.NewRunContext(cmd.Context(), tracing.TriggerCLI))
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, stats)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Files: %d added, %d updated, %d removed\nChunks: %d added, %d removed\n",
		stats.FilesAdded, stats.FilesUpdated, stats.FilesRemoved, stats.ChunksAdded, stats.ChunksRemoved)
	printFileErrors(cmd, stats.Errors)
	return nil
}
