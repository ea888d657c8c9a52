package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
	"github.com/harun/memdex/pkg/memory"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and daemon status",
	Long:  `Show the totals of the memory index and whether a memdex daemon is running.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	Index  memory.IndexStatus `json:"index"`
	Daemon daemonReport       `json:"daemon"`
}

type daemonReport struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	report := statusReport{
		Index:  d.GetIndexer().Status(cmd.Context()),
		Daemon: readDaemonReport(d.GetConfig().DataDir),
	}

	if jsonOutput {
		return printJSON(cmd, report)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workspace: %s\n", report.Index.WorkspacePath)
	fmt.Fprintf(out, "Store: %s\n", report.Index.StoreLocation)
	fmt.Fprintf(out, "Files indexed: %d\n", report.Index.TotalFilesIndexed)
	fmt.Fprintf(out, "Chunks: %d\n", report.Index.TotalChunks)
	if report.Index.LastRun != nil {
		fmt.Fprintf(out, "Last run: %s\n", report.Index.LastRun.Format(time.RFC3339))
	}

	if !report.Daemon.Running {
		fmt.Fprintln(out, "Daemon: stopped")
		return nil
	}
	fmt.Fprintf(out, "Daemon: running (PID %d", report.Daemon.PID)
	if report.Daemon.Uptime != "" {
		fmt.Fprintf(out, ", up %s", report.Daemon.Uptime)
	}
	fmt.Fprintln(out, ")")
	return nil
}

func readDaemonReport(dataDir string) daemonReport {
	pid, ok := daemon.RunningPID(dataDir)
	if !ok {
		return daemonReport{}
	}

	report := daemonReport{Running: true, PID: pid}
	// PID file modification time approximates the start time
	if info, err := os.Stat(daemon.PIDFilePath(dataDir)); err == nil {
		report.Uptime = formatDuration(time.Since(info.ModTime()))
	}
	return report
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
