package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/loom/pkg/commandqueue"
	"github.com/harun/loom/pkg/model"
	"github.com/harun/loom/pkg/session"
	"github.com/harun/loom/pkg/tool"
)

// scriptedProvider replays a fixed sequence of responses, one per call.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []scriptedResponse
	call     int
	requests []model.Request
	err      error
}

type scriptedResponse struct {
	text      string
	toolCalls []model.ToolCall
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req model.Request) (*model.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}

	p.requests = append(p.requests, req)

	idx := p.call
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	resp := p.script[idx]
	p.call++

	s := model.NewStream()
	go func() {
		if resp.text != "" {
			s.Push(model.Event{Type: model.EventText, Text: resp.text})
		}
		for i := range resp.toolCalls {
			call := resp.toolCalls[i]
			s.Push(model.Event{Type: model.EventToolCall, ToolCall: &call})
		}
		reason := model.StopAnswered
		if len(resp.toolCalls) > 0 {
			reason = model.StopToolRequested
		}
		s.Finish(reason, &model.Usage{InputTokens: 10, OutputTokens: 5})
	}()
	return s, nil
}

func newTestRegistry(t *testing.T) *tool.Registry {
	t.Helper()

	registry := tool.NewRegistry()
	err := registry.Register(tool.Definition{
		Name:        "calculate",
		Description: "Multiply two numbers",
		Parameters: []tool.Parameter{
			{Name: "a", Type: "number", Description: "First operand", Required: true},
			{Name: "b", Type: "number", Description: "Second operand", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			a := args["a"].(float64)
			b := args["b"].(float64)
			return fmt.Sprintf("%g", a*b), nil
		},
	})
	require.NoError(t, err)
	return registry
}

func newTestRunner(t *testing.T, provider model.Provider, store session.Store) (*Runner, *commandqueue.Queue) {
	t.Helper()

	adapter, err := model.NewAdapter(model.AdapterConfig{
		Provider: provider,
		Model:    "test-model",
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	queue := commandqueue.New()
	t.Cleanup(func() { queue.Close() })

	runner, err := NewRunner(Config{
		Store:        store,
		Registry:     newTestRegistry(t),
		Adapter:      adapter,
		Queue:        queue,
		SystemPrompt: "You are a travel assistant.",
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return runner, queue
}

func TestRunTurn_Answered(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{text: "<think>greeting, no tools needed</think>Hello! How can I help?"},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	result, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "hi"})
	require.NoError(t, err)

	assert.Equal(t, TurnAnswered, result.TerminalReason)
	assert.Equal(t, "Hello! How can I help?", result.VisibleText)
	assert.Equal(t, "greeting, no tools needed", result.HiddenThought)
	assert.NotContains(t, result.VisibleText, "<think>")
	assert.NotContains(t, result.VisibleText, "</think>")
	assert.Empty(t, result.ToolInvocations)

	history, err := store.History(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, session.RoleUser, history[0].Role)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, session.RoleAssistant, history[1].Role)
}

func TestRunTurn_ToolRound(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{toolCalls: []model.ToolCall{{
			ID:        "call_1",
			Name:      "calculate",
			Arguments: map[string]interface{}{"a": float64(350), "b": float64(8)},
		}}},
		{text: "<think>plan: 8 days at $350/day is $2800</think>Sure, that will be $2800."},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	result, err := runner.RunTurn(TurnParams{
		SessionKey: "alice",
		Input:      "How much is an 8 day trip at $350 per day?",
	})
	require.NoError(t, err)

	assert.Equal(t, TurnAnswered, result.TerminalReason)
	assert.Equal(t, "Sure, that will be $2800.", result.VisibleText)
	require.Len(t, result.ToolInvocations, 1)
	assert.Equal(t, "calculate", result.ToolInvocations[0].Name)
	assert.Equal(t, "2800", result.ToolInvocations[0].Result)
	assert.Empty(t, result.ToolInvocations[0].Error)

	// Transcript: user, assistant(tool_calls), tool, assistant.
	history, err := store.History(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, session.RoleAssistant, history[1].Role)
	require.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, session.RoleTool, history[2].Role)
	assert.Equal(t, "call_1", history[2].ToolCallID)
	assert.Equal(t, "2800", history[2].Content)

	// The second model call must have seen the tool result.
	require.Len(t, provider.requests, 2)
	last := provider.requests[1].Messages
	assert.Equal(t, "tool", last[len(last)-1].Role)
}

func TestRunTurn_ToolCallsExecuteInOrder(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{toolCalls: []model.ToolCall{
			{ID: "call_a", Name: "calculate", Arguments: map[string]interface{}{"a": float64(1), "b": float64(2)}},
			{ID: "call_b", Name: "calculate", Arguments: map[string]interface{}{"a": float64(3), "b": float64(4)}},
		}},
		{text: "Done."},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	result, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "compute both"})
	require.NoError(t, err)

	require.Len(t, result.ToolInvocations, 2)
	assert.Equal(t, "call_a", result.ToolInvocations[0].ID)
	assert.Equal(t, "call_b", result.ToolInvocations[1].ID)

	history, err := store.History(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "call_a", history[2].ToolCallID)
	assert.Equal(t, "call_b", history[3].ToolCallID)
}

func TestRunTurn_UnknownToolBecomesResultText(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{toolCalls: []model.ToolCall{{
			ID:        "call_1",
			Name:      "teleport",
			Arguments: map[string]interface{}{},
		}}},
		{text: "I cannot do that."},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	result, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "teleport me"})
	require.NoError(t, err)

	assert.Equal(t, TurnAnswered, result.TerminalReason)
	require.Len(t, result.ToolInvocations, 1)
	assert.Contains(t, result.ToolInvocations[0].Error, "not available")

	// The failure is visible to the model as a tool result, not fatal.
	history, err := store.History(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, session.RoleTool, history[2].Role)
	assert.Contains(t, history[2].Content, "not available")
}

func TestRunTurn_MaxToolIterations(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{toolCalls: []model.ToolCall{{
			ID:        "call_loop",
			Name:      "calculate",
			Arguments: map[string]interface{}{"a": float64(1), "b": float64(1)},
		}}},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	result, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "loop forever"})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrMaxToolIterations)
	assert.Equal(t, TurnFailed, result.TerminalReason)
	assert.Len(t, result.ToolInvocations, DefaultMaxToolTurns)

	// History up to the failure is preserved.
	history, histErr := store.History(context.Background(), "alice")
	require.NoError(t, histErr)
	assert.Greater(t, len(history), DefaultMaxToolTurns)
}

func TestRunTurn_ProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("connection refused")}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	result, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "hi"})
	require.Error(t, err)

	var invErr *model.InvocationError
	assert.ErrorAs(t, err, &invErr)
	assert.Equal(t, TurnFailed, result.TerminalReason)

	// The user message survives a failed turn.
	history, histErr := store.History(context.Background(), "alice")
	require.NoError(t, histErr)
	require.Len(t, history, 1)
	assert.Equal(t, session.RoleUser, history[0].Role)
}

func TestRunTurn_HistoryAccumulatesAcrossTurns(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{text: "First answer."},
		{text: "Second answer."},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	_, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "one"})
	require.NoError(t, err)
	_, err = runner.RunTurn(TurnParams{SessionKey: "alice", Input: "two"})
	require.NoError(t, err)

	history, err := store.History(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 4)

	// The second model call carries the full prior exchange.
	require.Len(t, provider.requests, 2)
	second := provider.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "one", second[0].Content)
	assert.Equal(t, "First answer.", second[1].Content)
	assert.Equal(t, "two", second[2].Content)
}

func TestRunTurn_StreamingCallback(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{text: "Hello there."},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	var fragments []string
	_, err := runner.RunTurn(TurnParams{
		SessionKey: "alice",
		Input:      "hi",
		OnText:     func(text string) { fragments = append(fragments, text) },
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", strings.Join(fragments, ""))
}

func TestRunTurn_Validation(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{{text: "x"}}}
	runner, _ := newTestRunner(t, provider, session.NewMemoryStore())

	_, err := runner.RunTurn(TurnParams{Input: "hi"})
	assert.Error(t, err)

	_, err = runner.RunTurn(TurnParams{SessionKey: "alice"})
	assert.Error(t, err)
}

func TestRunTurn_SessionsIsolated(t *testing.T) {
	provider := &scriptedProvider{script: []scriptedResponse{
		{text: "Answer."},
	}}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	_, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "hi"})
	require.NoError(t, err)

	history, err := store.History(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestIsExitCommand(t *testing.T) {
	for _, input := range []string{"/exit", "/quit", "exit", "quit", "EXIT", "  /Quit  "} {
		assert.True(t, IsExitCommand(input), input)
	}
	for _, input := range []string{"", "hello", "exit the building", "/exitt"} {
		assert.False(t, IsExitCommand(input), input)
	}
}

// blockingProvider parks every call until its context is cancelled.
type blockingProvider struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingProvider) Name() string { return "blocking" }

func (p *blockingProvider) Stream(ctx context.Context, req model.Request) (*model.Stream, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunTurn_Aborted(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{})}
	store := session.NewMemoryStore()
	runner, _ := newTestRunner(t, provider, store)

	type outcome struct {
		result TurnResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "hello"})
		done <- outcome{res, err}
	}()

	<-provider.started
	assert.True(t, runner.IsRunning("alice"))
	require.NoError(t, runner.Abort("alice"))

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, TurnAborted, out.result.TerminalReason)
	assert.False(t, runner.IsRunning("alice"))

	// The user message survives the abort
	history, err := store.History(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, session.RoleUser, history[0].Role)

	t.Run("abort with no active turn is a no-op", func(t *testing.T) {
		assert.NoError(t, runner.Abort("nobody"))
	})
}

func TestResetSession(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{})}
	store := session.NewMemoryStore()
	runner, queue := newTestRunner(t, provider, store)

	first := make(chan TurnResult, 1)
	go func() {
		res, _ := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "first"})
		first <- res
	}()
	<-provider.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := runner.RunTurn(TurnParams{SessionKey: "alice", Input: "second"})
		secondErr <- err
	}()

	// Wait until the second turn is parked in the lane
	lane := commandqueue.SessionLane("alice")
	for i := 0; queue.GetQueueSize(lane) == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotZero(t, queue.GetQueueSize(lane))

	require.NoError(t, runner.ResetSession(context.Background(), "alice"))

	res := <-first
	assert.Equal(t, TurnAborted, res.TerminalReason)
	assert.Error(t, <-secondErr)

	history, err := store.History(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, history)

	t.Run("empty session key", func(t *testing.T) {
		assert.Error(t, runner.ResetSession(context.Background(), ""))
	})
}
