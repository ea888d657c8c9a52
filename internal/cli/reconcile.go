package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
	"github.com/harun/memdex/internal/tracing"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair the index after an interrupted run",
	Long: `Drop file index entries whose chunks are missing from the store, then
delete stored chunks that no file index entry owns. Run update afterwards to
re-index the dropped files.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	stats, err := d.GetIndexer().Reconcile(tracing.NewRunContext(cmd.Context(), tracing.TriggerCLI))
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, stats)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Orphan chunks removed: %d\nFile entries dropped: %d\n",
		stats.OrphansRemoved, stats.EntriesDropped)
	return nil
}
