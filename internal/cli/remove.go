package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
	"github.com/harun/memdex/internal/tracing"
	"github.com/harun/memdex/pkg/memory"
)

var removeCmd = &cobra.Command{
	Use:   "remove <file>",
	Short: "Drop a file's chunks from the index",
	Long: `Remove every chunk of a memory file from the index along with its file
index entry. The file itself is not touched; the next update re-indexes it
if it still exists.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := memory.ValidateRelativePath(args[0]); err != nil {
		return err
	}

	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	n, err := d.GetIndexer().RemoveFile(tracing.WithTrigger(cmd.Context(), tracing.TriggerCLI), args[0])
	if err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, map[string]any{"file": args[0], "chunks_removed": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d chunk(s) of %s\n", n, args[0])
	return nil
}
