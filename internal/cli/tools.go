package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/loom/pkg/coretools"
	"github.com/harun/loom/pkg/tool"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the model can call",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry := tool.NewRegistry()
	if err := coretools.RegisterCoreTools(registry, coretools.Options{
		DailyRate: cfg.Agent.DailyRate,
	}); err != nil {
		return err
	}

	for _, schema := range registry.Describe() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", schema.Name, schema.Description)
	}
	return nil
}
