package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
)

var showCmd = &cobra.Command{
	Use:   "show <chunk-id>",
	Short: "Print the full text of an indexed chunk",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	content, ok := d.GetRetriever().RetrieveFullContent(cmd.Context(), args[0])
	if !ok {
		return fmt.Errorf("chunk not found: %s", args[0])
	}

	if jsonOutput {
		return printJSON(cmd, map[string]string{"chunk_id": args[0], "content": content})
	}
	fmt.Fprintln(cmd.OutOrStdout(), content)
	return nil
}
