package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
	"github.com/harun/memdex/internal/tracing"
	"github.com/harun/memdex/pkg/memory"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index [file...]",
	Short: "Index the workspace memory files",
	Long: `Index every present memory file, skipping files whose content is unchanged.
With file arguments only those files are re-indexed. --force clears the
index first and rebuilds it from scratch.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexForce, "force", "f", false, "clear the index and rebuild it")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	ctx := tracing.NewRunContext(cmd.Context(), tracing.TriggerCLI)
	indexer := d.GetIndexer()

	if len(args) > 0 {
		if indexForce {
			return fmt.Errorf("--force cannot be combined with file arguments")
		}
		return indexFiles(cmd, indexer, args)
	}

	stats, err := indexer.IndexAll(ctx, indexForce)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, stats)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %d file(s), %d chunk(s) created, %d unchanged\n",
		stats.FilesProcessed, stats.ChunksCreated, stats.FilesSkipped)
	printFileErrors(cmd, stats.Errors)
	return nil
}

func indexFiles(cmd *cobra.Command, indexer *memory.MemoryIndexer, paths []string) error {
	ctx := tracing.NewRunContext(cmd.Context(), tracing.TriggerCLI)
	results := make(map[string]int, len(paths))

	var failed []memory.FileError
	for _, p := range paths {
		if err := memory.ValidateRelativePath(p); err != nil {
			failed = append(failed, memory.FileError{Path: p, Err: err.Error()})
			continue
		}
		if !memory.IsTargetFile(p) {
			failed = append(failed, memory.FileError{Path: p, Err: "not a memory file"})
			continue
		}
		n, err := indexer.IndexFile(ctx, p)
		if err != nil {
			failed = append(failed, memory.FileError{Path: p, Err: err.Error()})
			continue
		}
		results[p] = n
	}

	if jsonOutput {
		if err := printJSON(cmd, map[string]any{"chunks": results, "errors": failed}); err != nil {
			return err
		}
	} else {
		for _, p := range paths {
			if n, ok := results[p]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunk(s)\n", p, n)
			}
		}
		printFileErrors(cmd, failed)
	}

	if len(failed) == len(paths) {
		return fmt.Errorf("no file was indexed")
	}
	return nil
}

func printFileErrors(cmd *cobra.Command, errs []memory.FileError) {
	for _, fe := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", fe.Path, fe.Err)
	}
}
