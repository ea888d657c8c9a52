package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
	"github.com/harun/memdex/internal/tracing"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every chunk and file index entry",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		fmt.Fprint(cmd.OutOrStdout(), "Delete the whole memory index? [y/N]: ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	if err := d.GetIndexer().Clear(tracing.WithTrigger(cmd.Context(), tracing.TriggerCLI)); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Memory index cleared.")
	return nil
}
