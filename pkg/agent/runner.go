package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/internal/tracing"
	"github.com/harun/loom/pkg/commandqueue"
	"github.com/harun/loom/pkg/model"
	"github.com/harun/loom/pkg/reasoning"
	"github.com/harun/loom/pkg/session"
	"github.com/harun/loom/pkg/tool"
)

// Runner orchestrates conversational turns. Each turn runs on the
// session's queue lane, so concurrent submissions for one session
// serialize in arrival order while distinct sessions proceed in
// parallel.
type Runner struct {
	store        session.Store
	registry     *tool.Registry
	adapter      *model.Adapter
	queue        *commandqueue.Queue
	extractor    *reasoning.Extractor
	systemPrompt string
	maxToolTurns int
	logger       zerolog.Logger

	// Active turns for abort capability
	activeTurns map[string]context.CancelFunc
	turnsMu     sync.RWMutex
}

// Config holds runner configuration
type Config struct {
	Store        session.Store
	Registry     *tool.Registry
	Adapter      *model.Adapter
	Queue        *commandqueue.Queue
	SystemPrompt string
	MaxToolTurns int
	Logger       zerolog.Logger
}

// NewRunner creates a turn runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("model adapter is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = DefaultMaxToolTurns
	}

	return &Runner{
		store:        cfg.Store,
		registry:     cfg.Registry,
		adapter:      cfg.Adapter,
		queue:        cfg.Queue,
		extractor:    reasoning.NewExtractor(cfg.Adapter.Markers()),
		systemPrompt: cfg.SystemPrompt,
		maxToolTurns: cfg.MaxToolTurns,
		logger:       cfg.Logger,
		activeTurns:  make(map[string]context.CancelFunc),
	}, nil
}

// RunTurn executes one conversational turn
func (r *Runner) RunTurn(params TurnParams) (TurnResult, error) {
	return r.RunTurnWithContext(context.Background(), params)
}

// RunTurnWithContext executes one conversational turn with a
// caller-provided context.
func (r *Runner) RunTurnWithContext(ctx context.Context, params TurnParams) (TurnResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if params.SessionKey == "" {
		return TurnResult{}, fmt.Errorf("session key cannot be empty")
	}
	if params.Input == "" {
		return TurnResult{}, fmt.Errorf("input cannot be empty")
	}

	ctx = tracing.NewTurnContext(ctx, params.SessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.agent",
		"agent.run_turn",
		attribute.String("session_key", params.SessionKey),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	lane := commandqueue.SessionLane(params.SessionKey)

	result, err := r.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return r.executeTurn(taskCtx, params)
	})

	if err != nil {
		logger.Error().Err(err).Msg("Turn failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if turnResult, ok := result.(TurnResult); ok {
			return turnResult, err
		}
		return TurnResult{SessionKey: params.SessionKey, TerminalReason: TurnFailed}, err
	}

	return result.(TurnResult), nil
}

// Abort cancels a running turn for a session
func (r *Runner) Abort(sessionKey string) error {
	r.turnsMu.Lock()
	defer r.turnsMu.Unlock()

	cancel, exists := r.activeTurns[sessionKey]
	if !exists {
		r.logger.Debug().Str("sessionKey", sessionKey).Msg("No active turn to abort")
		return nil
	}

	r.logger.Info().Str("sessionKey", sessionKey).Msg("Aborting turn")
	cancel()
	delete(r.activeTurns, sessionKey)

	return nil
}

// ResetSession aborts any in-flight turn for the session, drops turns
// still waiting in its queue lane, and clears its stored history.
func (r *Runner) ResetSession(ctx context.Context, sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}

	if err := r.Abort(sessionKey); err != nil {
		return err
	}
	r.queue.ResetLane(commandqueue.SessionLane(sessionKey))

	if err := r.store.Reset(ctx, sessionKey); err != nil {
		return err
	}

	observability.RecordSessionAudit(ctx, "reset", sessionKey, nil)
	r.logger.Info().Str("sessionKey", sessionKey).Msg("Session reset")
	return nil
}

// IsRunning checks if a turn is currently running for a session
func (r *Runner) IsRunning(sessionKey string) bool {
	r.turnsMu.RLock()
	defer r.turnsMu.RUnlock()

	_, exists := r.activeTurns[sessionKey]
	return exists
}

// executeTurn performs the model-call/tool-execution loop for one turn
func (r *Runner) executeTurn(ctx context.Context, params TurnParams) (TurnResult, error) {
	logger := tracing.LoggerFromContext(ctx, r.logger)
	startTime := time.Now()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.turnsMu.Lock()
	r.activeTurns[params.SessionKey] = cancel
	r.turnsMu.Unlock()

	defer func() {
		r.turnsMu.Lock()
		delete(r.activeTurns, params.SessionKey)
		r.turnsMu.Unlock()
	}()

	result, err := r.runLoop(execCtx, params)
	result.SessionKey = params.SessionKey

	if execCtx.Err() != nil && result.TerminalReason != TurnAnswered {
		result.TerminalReason = TurnAborted
		err = nil
		logger.Info().Msg("Turn aborted")
	}

	observability.RecordTurn(string(result.TerminalReason), time.Since(startTime), len(result.ToolInvocations))
	observability.RecordTurnAudit(ctx, params.SessionKey, string(result.TerminalReason), map[string]interface{}{
		"tool_invocations": len(result.ToolInvocations),
	})

	return result, err
}

// runLoop drives the turn state machine: persist the user message, then
// alternate model calls and tool executions until the model produces a
// final answer or the round budget runs out.
func (r *Runner) runLoop(ctx context.Context, params TurnParams) (TurnResult, error) {
	logger := tracing.LoggerFromContext(ctx, r.logger)

	history, err := r.store.History(ctx, params.SessionKey)
	if err != nil {
		return TurnResult{TerminalReason: TurnFailed}, fmt.Errorf("failed to load session history: %w", err)
	}

	userMsg := session.Message{
		Role:    session.RoleUser,
		Content: params.Input,
	}
	if err := r.store.Append(ctx, params.SessionKey, userMsg); err != nil {
		return TurnResult{TerminalReason: TurnFailed}, fmt.Errorf("failed to save user message: %w", err)
	}

	messages := toModelMessages(history)
	messages = append(messages, model.Message{Role: session.RoleUser, Content: params.Input})

	tools := r.registry.Describe()
	invocations := []ToolInvocation{}

	for round := 0; round < r.maxToolTurns; round++ {
		select {
		case <-ctx.Done():
			return TurnResult{ToolInvocations: invocations, TerminalReason: TurnAborted}, nil
		default:
		}

		stream, err := r.adapter.Invoke(ctx, r.systemPrompt, messages, tools)
		if err != nil {
			return TurnResult{ToolInvocations: invocations, TerminalReason: TurnFailed}, err
		}

		resp, err := model.Collect(stream, r.textObserver(params))
		if err != nil {
			return TurnResult{ToolInvocations: invocations, TerminalReason: TurnFailed},
				&model.InvocationError{Provider: r.adapter.ProviderName(), Err: err}
		}

		if resp.StopReason != model.StopToolRequested || len(resp.ToolCalls) == 0 {
			return r.finishTurn(ctx, params, resp, invocations)
		}

		assistantMsg := session.Message{
			Role:      session.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: toSessionToolCalls(resp.ToolCalls),
		}
		if err := r.store.Append(ctx, params.SessionKey, assistantMsg); err != nil {
			return TurnResult{ToolInvocations: invocations, TerminalReason: TurnFailed},
				fmt.Errorf("failed to save assistant message: %w", err)
		}
		messages = append(messages, model.Message{
			Role:      session.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Execute requested calls in the order the model emitted them
		for _, call := range resp.ToolCalls {
			invocation := r.invokeTool(ctx, params.SessionKey, call)
			invocations = append(invocations, invocation)

			content := invocation.Result
			if invocation.Error != "" {
				content = invocation.Error
			}

			toolMsg := session.Message{
				Role:       session.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			}
			if err := r.store.Append(ctx, params.SessionKey, toolMsg); err != nil {
				return TurnResult{ToolInvocations: invocations, TerminalReason: TurnFailed},
					fmt.Errorf("failed to save tool result: %w", err)
			}
			messages = append(messages, model.Message{
				Role:       session.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			})
		}

		logger.Debug().
			Int("round", round+1).
			Int("toolCalls", len(resp.ToolCalls)).
			Msg("Tool round completed")
	}

	return TurnResult{ToolInvocations: invocations, TerminalReason: TurnFailed}, ErrMaxToolIterations
}

// finishTurn persists the final assistant message and splits it into
// visible text and hidden thought.
func (r *Runner) finishTurn(ctx context.Context, params TurnParams, resp *model.Response, invocations []ToolInvocation) (TurnResult, error) {
	assistantMsg := session.Message{
		Role:    session.RoleAssistant,
		Content: resp.Content,
		Metadata: map[string]interface{}{
			"stop_reason": string(resp.StopReason),
		},
	}
	if err := r.store.Append(ctx, params.SessionKey, assistantMsg); err != nil {
		return TurnResult{ToolInvocations: invocations, TerminalReason: TurnFailed},
			fmt.Errorf("failed to save assistant message: %w", err)
	}

	thought, answer := r.extractor.Split(resp.Content)

	return TurnResult{
		VisibleText:     answer,
		HiddenThought:   thought,
		ToolInvocations: invocations,
		TerminalReason:  TurnAnswered,
		Usage:           resp.Usage,
	}, nil
}

// invokeTool executes one requested tool call. Tool-level failures are
// converted into model-visible result text so the loop can continue;
// only infrastructure errors terminate the turn.
func (r *Runner) invokeTool(ctx context.Context, sessionKey string, call model.ToolCall) ToolInvocation {
	logger := tracing.LoggerFromContext(ctx, r.logger)

	invocation := ToolInvocation{
		ID:        call.ID,
		Name:      call.Name,
		Arguments: call.Arguments,
	}

	value, err := r.registry.Invoke(ctx, call.Name, call.Arguments)
	if err != nil {
		invocation.Error = toolErrorText(call.Name, err)
		observability.RecordToolAudit(ctx, call.Name, sessionKey, "failure", nil)
		logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool execution failed")
		return invocation
	}

	invocation.Result = formatToolResult(value)
	observability.RecordToolAudit(ctx, call.Name, sessionKey, "success", nil)
	logger.Debug().Str("tool", call.Name).Msg("Tool executed")
	return invocation
}

// textObserver wires the caller's streaming callback, if any.
func (r *Runner) textObserver(params TurnParams) func(string) {
	if params.OnText == nil {
		return nil
	}
	return params.OnText
}

// toolErrorText renders a tool failure as result text the model can
// read and recover from.
func toolErrorText(name string, err error) string {
	var argErr *tool.ArgumentError
	var execErr *tool.ExecutionError

	switch {
	case errors.Is(err, tool.ErrUnknownTool):
		return fmt.Sprintf("Error: tool %q is not available.", name)
	case errors.As(err, &argErr):
		return fmt.Sprintf("Error: invalid arguments for tool %q: %s", name, argErr.Error())
	case errors.As(err, &execErr):
		return fmt.Sprintf("Error: tool %q failed: %v", name, execErr.Unwrap())
	default:
		return fmt.Sprintf("Error: tool %q failed: %v", name, err)
	}
}

// formatToolResult renders a tool's return value for the transcript.
func formatToolResult(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

// toModelMessages converts persisted history to provider-neutral form.
func toModelMessages(history []session.Message) []model.Message {
	messages := make([]model.Message, 0, len(history))
	for _, msg := range history {
		mm := model.Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			mm.ToolCalls = append(mm.ToolCalls, model.ToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		messages = append(messages, mm)
	}
	return messages
}

// toSessionToolCalls converts model tool calls for persistence.
func toSessionToolCalls(calls []model.ToolCall) []session.ToolCall {
	out := make([]session.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, session.ToolCall{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	return out
}
