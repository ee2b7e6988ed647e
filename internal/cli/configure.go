package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/loom/internal/config"
)

var (
	confProvider     string
	confModel        string
	confBaseURL      string
	confAPIKey       string
	confBackend      string
	confMaxToolTurns int
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the configuration file",
	Long: `Write the configuration file from the given flags, keeping any
existing settings that are not overridden.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&confProvider, "provider", "", "model provider (ollama, openai, anthropic)")
	configureCmd.Flags().StringVar(&confModel, "model", "", "model name")
	configureCmd.Flags().StringVar(&confBaseURL, "base-url", "", "model API base URL")
	configureCmd.Flags().StringVar(&confAPIKey, "api-key", "", "model API key")
	configureCmd.Flags().StringVar(&confBackend, "store", "", "conversation store backend (file, sqlite, memory)")
	configureCmd.Flags().IntVar(&confMaxToolTurns, "max-tool-turns", 0, "maximum tool rounds per turn")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if confProvider != "" {
		cfg.Model.Provider = confProvider
	}
	if confModel != "" {
		cfg.Model.Name = confModel
	}
	if confBaseURL != "" {
		cfg.Model.BaseURL = confBaseURL
	}
	if confAPIKey != "" {
		cfg.Model.APIKey = confAPIKey
	}
	if confBackend != "" {
		cfg.Store.Backend = confBackend
	}
	if confMaxToolTurns > 0 {
		cfg.Agent.MaxToolTurns = confMaxToolTurns
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(cmd.OutOrStdout(), "Start chatting with: loom chat")

	return nil
}
