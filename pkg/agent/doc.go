// Package agent orchestrates conversational turns: session-aware model
// calls with a bounded tool-execution loop and hidden-reasoning
// extraction on the final answer.
//
// Invariants:
// - Turns are serialized per session lane through commandqueue.
// - Session state is loaded before execution and persisted step by step.
// - Tool calls route through the tool registry only, in emission order.
// - The model-call/tool-execution loop is bounded by MaxToolTurns.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{...})
//	result, _ := runner.RunTurn(agent.TurnParams{
//		SessionKey: "alice",
//		Input:      "hello",
//	})
//	_ = result
package agent
