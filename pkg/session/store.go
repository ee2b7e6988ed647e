package session

import (
	"context"
	"fmt"
	"strings"
)

// Store is the conversation store contract. Append is rejected with an
// *OrderingError when the tool-message invariant would be violated;
// History returns a copy, never a shared mutable reference; Reset
// clears one session only.
type Store interface {
	Append(ctx context.Context, sessionKey string, msg Message) error
	History(ctx context.Context, sessionKey string) ([]Message, error)
	Reset(ctx context.Context, sessionKey string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// OrderingError reports an append that would violate message ordering:
// a tool-role message that does not answer a pending assistant tool
// call. This is a programmer-error class and is never converted into a
// model-visible result.
type OrderingError struct {
	SessionKey string
	Reason     string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("message ordering violation in session %s: %s", e.SessionKey, e.Reason)
}

// validateAppend enforces the append invariants against the existing
// history. Every tool-role message must reference an assistant tool
// call that has not been answered yet.
func validateAppend(sessionKey string, history []Message, msg Message) error {
	switch msg.Role {
	case RoleUser, RoleAssistant, RoleTool:
	default:
		return &OrderingError{SessionKey: sessionKey, Reason: fmt.Sprintf("unknown role %q", msg.Role)}
	}

	if msg.Role != RoleTool {
		return nil
	}

	if msg.ToolCallID == "" {
		return &OrderingError{SessionKey: sessionKey, Reason: "tool message has no tool_call_id"}
	}

	pending := pendingToolCalls(history)
	if !pending[msg.ToolCallID] {
		return &OrderingError{
			SessionKey: sessionKey,
			Reason:     fmt.Sprintf("tool message answers no pending call %s", msg.ToolCallID),
		}
	}

	return nil
}

// pendingToolCalls walks history and returns the set of assistant tool
// call IDs that have no tool-role answer yet.
func pendingToolCalls(history []Message) map[string]bool {
	pending := make(map[string]bool)
	for _, msg := range history {
		switch msg.Role {
		case RoleAssistant:
			for _, call := range msg.ToolCalls {
				pending[call.ID] = true
			}
		case RoleTool:
			delete(pending, msg.ToolCallID)
		}
	}
	return pending
}

// validateSessionKey rejects keys that could escape the store's
// namespace. Shared by both backends.
func validateSessionKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}
