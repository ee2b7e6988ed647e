// Package model adapts the conversation state machine to concrete LLM
// inference backends.
//
// A provider call yields a finite, one-pass stream of typed events
// terminated by exactly one done event carrying a stop reason. The
// Adapter wraps providers with the decoding conventions the turn loop
// depends on: near-deterministic sampling when tools are bound, the
// reasoning-open marker as a stop sequence, and a synthetic assistant
// turn that primes generation inside an open reasoning block.
package model

import (
	"fmt"

	"github.com/harun/loom/pkg/tool"
)

// StopReason classifies how a generation step ended.
type StopReason string

const (
	// StopAnswered marks a natural end of generation.
	StopAnswered StopReason = "answered"
	// StopToolRequested marks a response carrying tool-call requests.
	StopToolRequested StopReason = "tool_requested"
	// StopTruncated marks generation halted by a configured stop
	// sequence. Consumers treat it like StopAnswered once decoded.
	StopTruncated StopReason = "stopped_early"
)

// ToolCall is a structured tool-call request emitted by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message is one conversational unit in provider-neutral form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request contains the provider-neutral call parameters.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []tool.Schema
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
	Stop        []string
}

// EventType discriminates stream events.
type EventType string

const (
	// EventText carries an incremental text fragment.
	EventText EventType = "text"
	// EventToolCall carries one structured tool-call request.
	EventToolCall EventType = "tool_call"
	// EventDone terminates the stream with a stop reason.
	EventDone EventType = "done"
	// EventError terminates the stream with a mid-stream failure.
	EventError EventType = "error"
)

// Event is one fragment of a provider response stream.
type Event struct {
	Type       EventType
	Text       string
	ToolCall   *ToolCall
	StopReason StopReason
	Usage      *Usage
	Err        error
}

// Response is the assembled form of a fully consumed stream.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      *Usage
}

// InvocationError reports a failed call to the inference backend. The
// adapter performs no retries; a fresh turn is the recovery path.
type InvocationError struct {
	Provider string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("model invocation failed (%s): %v", e.Provider, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
