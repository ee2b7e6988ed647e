package agent

import (
	"errors"
	"strings"

	"github.com/harun/loom/pkg/model"
)

// TerminalReason classifies how a turn ended.
type TerminalReason string

const (
	// TurnAnswered means the turn produced a final visible answer.
	TurnAnswered TerminalReason = "answered"
	// TurnAborted means the turn was cancelled before completion.
	TurnAborted TerminalReason = "aborted"
	// TurnFailed means the turn hit an unrecoverable error. Session
	// history up to the failure point is preserved.
	TurnFailed TerminalReason = "failed"
)

// ErrMaxToolIterations is returned when a turn consumes its tool-call
// round budget without producing a final answer.
var ErrMaxToolIterations = errors.New("maximum tool execution turns exceeded")

// DefaultMaxToolTurns bounds the model-call/tool-execution loop.
const DefaultMaxToolTurns = 10

// TurnParams contains input parameters for one conversational turn.
type TurnParams struct {
	SessionKey string `json:"session_key"`
	Input      string `json:"input"`

	// OnText observes visible text fragments as they stream in. It runs
	// on the turn goroutine and must not block.
	OnText func(text string) `json:"-"`
}

// ToolInvocation records one tool execution performed during a turn.
type ToolInvocation struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    string                 `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// TurnResult contains the outcome of one conversational turn.
type TurnResult struct {
	SessionKey      string           `json:"session_key"`
	VisibleText     string           `json:"visible_text"`
	HiddenThought   string           `json:"hidden_thought,omitempty"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
	TerminalReason  TerminalReason   `json:"terminal_reason"`
	Usage           *model.Usage     `json:"usage,omitempty"`
}

var exitCommands = map[string]bool{
	"/exit": true,
	"/quit": true,
	"exit":  true,
	"quit":  true,
}

// IsExitCommand reports whether the input asks to end the session. Exit
// commands are only honored between turns, never inside one.
func IsExitCommand(input string) bool {
	return exitCommands[strings.ToLower(strings.TrimSpace(input))]
}
