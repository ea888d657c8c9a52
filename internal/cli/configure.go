package cli

import (
	"fmt"

	"github.com/harun/memdex/internal/config"
	"github.com/harun/memdex/internal/observability"
	"github.com/harun/memdex/internal/tracing"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up memdex.
The wizard will guide you through the workspace path, vector store backend,
embedding provider and watcher settings.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	wizard := config.NewWizardWithIO(cmd.InOrStdin(), cmd.OutOrStdout())

	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.ResolvePaths(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	configPath := loader.GetConfigPath()
	if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err == nil {
		defer observability.GetAuditLogger().Close()
	}
	observability.RecordConfigAudit(cmd.Context(), "configure", tracing.TriggerCLI, map[string]interface{}{
		"path":     configPath,
		"backend":  cfg.Store.Backend,
		"provider": cfg.Embedding.Provider,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration saved to: %s\n", configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nBuild the index with: memdex index")

	return nil
}
