package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/pkg/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Print the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsResetCmd = &cobra.Command{
	Use:   "reset <session>",
	Short: "Delete a session's history",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsReset,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsResetCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newStore(cfg)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
		return nil
	}
	for _, key := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), key)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	history, err := store.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "empty session")
		return nil
	}
	for _, msg := range history {
		fmt.Fprint(cmd.OutOrStdout(), formatMessage(msg))
	}
	return nil
}

func runSessionsReset(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(cmd.Context(), args[0]); err != nil {
		return err
	}
	observability.RecordSessionAudit(cmd.Context(), "reset", args[0], nil)
	fmt.Fprintf(cmd.OutOrStdout(), "session %q reset\n", args[0])
	return nil
}

// formatMessage renders one transcript entry for the terminal
func formatMessage(msg session.Message) string {
	var b strings.Builder
	switch msg.Role {
	case session.RoleUser:
		fmt.Fprintf(&b, "you> %s\n", msg.Content)
	case session.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			names := make([]string, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				names = append(names, tc.Name)
			}
			fmt.Fprintf(&b, "loom> [requested tools: %s]\n", strings.Join(names, ", "))
		}
		if msg.Content != "" {
			fmt.Fprintf(&b, "loom> %s\n", msg.Content)
		}
	case session.RoleTool:
		fmt.Fprintf(&b, "tool> %s\n", msg.Content)
	default:
		fmt.Fprintf(&b, "%s> %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
