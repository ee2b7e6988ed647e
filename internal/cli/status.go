package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/loom/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration and stored sessions",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	loader := config.NewLoader(cfgFile)
	fmt.Fprintf(out, "Config: %s\n", loader.GetConfigPath())
	fmt.Fprintf(out, "Model: %s (%s)\n", cfg.Model.Name, cfg.Model.Provider)
	fmt.Fprintf(out, "Store: %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "Max tool turns: %d\n", cfg.Agent.MaxToolTurns)

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		fmt.Fprintf(out, "Problems:\n  %s\n", strings.Join(msgs, "\n  "))
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Sessions: %d\n", len(keys))
	for _, key := range keys {
		fmt.Fprintf(out, "  %s\n", key)
	}

	return nil
}
