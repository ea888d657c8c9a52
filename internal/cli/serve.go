package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
)

var serveNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memdex daemon with the HTTP API",
	Long: `Run memdex in the foreground: catch the index up with the workspace,
keep it current with the file watcher and serve retrieval over HTTP
(/v1/memory/search, /v1/memory/chunks/{id}, /v1/memory/status, /metrics).
Stop it with Ctrl-C or "memdex stop".`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index current as memory files change",
	Long: `Run the debounced file watcher in the foreground. Bursts of edits to the
memory files trigger one update once the workspace has been quiet for
watcher.debounce_seconds.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "serve without watching the workspace")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return runForeground(cmd, daemon.Options{
		Watch: cfg.Watcher.Enabled && !serveNoWatch,
		Serve: true,
	})
}

func runWatch(cmd *cobra.Command, args []string) error {
	return runForeground(cmd, daemon.Options{Watch: true})
}

func runForeground(cmd *cobra.Command, opts daemon.Options) error {
	d, release, err := openDaemon(cmd, opts)
	if err != nil {
		return err
	}
	defer release()

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	if srv := d.GetServer(); srv != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "memdex serving on http://%s\n", srv.Addr())
	}

	d.Wait()
	return nil
}
