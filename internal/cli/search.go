package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/memdex/internal/daemon"
	"github.com/harun/memdex/internal/tracing"
)

var (
	searchTopK         int
	searchMinRelevance float64
	searchFiles        []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the memory sections most relevant to a query",
	Long: `Search the index and print pointers (file, section, summary, relevance)
to the best matching sections. Use "memdex show <chunk-id>" for full text.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "maximum number of results (default retrieval.default_top_k)")
	searchCmd.Flags().Float64Var(&searchMinRelevance, "min-relevance", -1, "drop results below this relevance (default retrieval.min_relevance)")
	searchCmd.Flags().StringSliceVar(&searchFiles, "file", nil, "restrict results to these files")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchTopK < 0 {
		return fmt.Errorf("--top-k must not be negative")
	}
	if searchMinRelevance > 1 {
		return fmt.Errorf("--min-relevance must be at most 1")
	}

	d, release, err := openDaemon(cmd, daemon.Options{})
	if err != nil {
		return err
	}
	defer release()

	cfg := d.GetConfig()
	topK := searchTopK
	if topK == 0 {
		topK = cfg.Retrieval.DefaultTopK
	}
	minRelevance := cfg.Retrieval.MinRelevance
	if searchMinRelevance >= 0 {
		minRelevance = searchMinRelevance
	}

	query := strings.Join(args, " ")
	ctx := tracing.WithTrigger(tracing.NewRequestContext(cmd.Context()), tracing.TriggerCLI)
	pointers := d.GetRetriever().Retrieve(ctx, query, topK, minRelevance, searchFiles)

	if jsonOutput {
		return printJSON(cmd, pointers)
	}

	out := cmd.OutOrStdout()
	if len(pointers) == 0 {
		fmt.Fprintln(out, "No matching memory.")
		return nil
	}
	for i, p := range pointers {
		fmt.Fprintf(out, "%d. %.3f %s\n   id: %s\n", i+1, p.RelevanceScore, p.String(), p.ChunkID)
	}
	return nil
}
