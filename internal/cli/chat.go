package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/loom/pkg/agent"
	"github.com/harun/loom/pkg/model"
	"github.com/harun/loom/pkg/reasoning"
)

var (
	chatSession      string
	chatShowThinking bool
	chatShowTools    bool
	chatStream       bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the configured model.
Type a message and press enter; the model may call tools before
answering. Type /exit or /quit to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "default", "session key for conversation history")
	chatCmd.Flags().BoolVar(&chatShowThinking, "show-thinking", false, "print the model's hidden reasoning")
	chatCmd.Flags().BoolVar(&chatShowTools, "show-tools", false, "print tool invocations as they happen")
	chatCmd.Flags().BoolVar(&chatStream, "stream", false, "print the answer as it streams")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "loom %s — model %s (%s), session %q\n", version, cfg.Model.Name, cfg.Model.Provider, chatSession)
	fmt.Fprintln(out, "Type /exit to leave, /reset to clear the session.")

	// Ctrl-C aborts the in-flight turn instead of killing the REPL
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			_ = rt.runner.Abort(chatSession)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\nyou> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if agent.IsExitCommand(input) {
			fmt.Fprintln(out, "bye")
			break
		}
		if strings.EqualFold(input, "/reset") {
			if err := rt.runner.ResetSession(cmd.Context(), chatSession); err != nil {
				printTurnError(out, err)
				continue
			}
			fmt.Fprintln(out, "session cleared")
			continue
		}

		params := agent.TurnParams{
			SessionKey: chatSession,
			Input:      input,
		}
		var filter *reasoning.StreamFilter
		if chatStream {
			filter = reasoning.NewStreamFilter(reasoning.Markers{
				Open:  cfg.Reasoning.OpenMarker,
				Close: cfg.Reasoning.CloseMarker,
			})
			params.OnText = func(text string) {
				fmt.Fprint(out, filter.Feed(text))
			}
		}

		result, err := rt.runner.RunTurnWithContext(cmd.Context(), params)
		if err != nil {
			printTurnError(out, err)
			continue
		}
		if result.TerminalReason == agent.TurnAborted {
			fmt.Fprintln(out, "loom> (turn aborted)")
			continue
		}
		if chatStream {
			fmt.Fprint(out, filter.Flush())
			fmt.Fprintln(out)
		}

		if chatShowTools {
			for _, inv := range result.ToolInvocations {
				if inv.Error != "" {
					fmt.Fprintf(out, "[tool %s failed: %s]\n", inv.Name, inv.Error)
					continue
				}
				fmt.Fprintf(out, "[tool %s -> %s]\n", inv.Name, inv.Result)
			}
		}
		if chatShowThinking && result.HiddenThought != "" {
			fmt.Fprintf(out, "(thinking) %s\n", result.HiddenThought)
		}
		if !chatStream {
			fmt.Fprintf(out, "loom> %s\n", result.VisibleText)
		}
	}

	return scanner.Err()
}

// printTurnError reports a failed turn without killing the REPL
func printTurnError(out io.Writer, err error) {
	var invErr *model.InvocationError
	switch {
	case errors.Is(err, agent.ErrMaxToolIterations):
		fmt.Fprintln(out, "loom> the model kept requesting tools without answering; giving up on this turn")
	case errors.As(err, &invErr):
		fmt.Fprintf(out, "loom> model backend error (%s): %v\n", invErr.Provider, invErr.Err)
	default:
		fmt.Fprintf(out, "loom> turn failed: %v\n", err)
	}
}
