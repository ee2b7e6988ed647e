package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/loom/pkg/reasoning"
	"github.com/harun/loom/pkg/tool"
)

// fakeProvider records the last request and replays scripted events.
type fakeProvider struct {
	lastReq Request
	events  []Event
	err     error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Stream(ctx context.Context, req Request) (*Stream, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	s := NewStream()
	go func() {
		for _, ev := range f.events {
			s.events <- ev
		}
		close(s.events)
	}()
	return s, nil
}

func doneEvent(reason StopReason) Event {
	return Event{Type: EventDone, StopReason: reason, Usage: &Usage{InputTokens: 10, OutputTokens: 5}}
}

func TestNewAdapter(t *testing.T) {
	t.Run("requires provider", func(t *testing.T) {
		_, err := NewAdapter(AdapterConfig{Model: "m"})
		assert.Error(t, err)
	})

	t.Run("requires model", func(t *testing.T) {
		_, err := NewAdapter(AdapterConfig{Provider: &fakeProvider{}})
		assert.Error(t, err)
	})

	t.Run("defaults markers", func(t *testing.T) {
		a, err := NewAdapter(AdapterConfig{Provider: &fakeProvider{}, Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, reasoning.DefaultMarkers(), a.Markers())
	})
}

func TestAdapterInvoke(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("registers open marker as stop sequence", func(t *testing.T) {
		fp := &fakeProvider{events: []Event{doneEvent(StopAnswered)}}
		a, err := NewAdapter(AdapterConfig{Provider: fp, Model: "m", Temperature: 0.7, Logger: logger})
		require.NoError(t, err)

		_, err = a.Invoke(context.Background(), "sys", nil, nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"<think>"}, fp.lastReq.Stop)
		assert.Equal(t, "sys", fp.lastReq.System)
		assert.Equal(t, 0.7, fp.lastReq.Temperature)
	})

	t.Run("forces near-deterministic sampling with tools bound", func(t *testing.T) {
		fp := &fakeProvider{events: []Event{doneEvent(StopToolRequested)}}
		a, err := NewAdapter(AdapterConfig{Provider: fp, Model: "m", Temperature: 0.9, Logger: logger})
		require.NoError(t, err)

		tools := []tool.Schema{{Name: "calculate"}}
		_, err = a.Invoke(context.Background(), "", nil, tools)
		require.NoError(t, err)

		assert.Zero(t, fp.lastReq.Temperature)
		assert.Equal(t, 0.1, fp.lastReq.TopP)
		assert.Equal(t, 1, fp.lastReq.TopK)
	})

	t.Run("priming appends synthetic assistant turn", func(t *testing.T) {
		fp := &fakeProvider{events: []Event{doneEvent(StopAnswered)}}
		a, err := NewAdapter(AdapterConfig{Provider: fp, Model: "m", PrimeReasoning: true, Logger: logger})
		require.NoError(t, err)

		history := []Message{{Role: "user", Content: "hi"}}
		_, err = a.Invoke(context.Background(), "", history, nil)
		require.NoError(t, err)

		require.Len(t, fp.lastReq.Messages, 2)
		last := fp.lastReq.Messages[1]
		assert.Equal(t, "assistant", last.Role)
		assert.Equal(t, "<think>", last.Content)

		// The caller's slice must not be mutated.
		assert.Len(t, history, 1)
	})

	t.Run("provider failure surfaces as InvocationError", func(t *testing.T) {
		fp := &fakeProvider{err: errors.New("connection refused")}
		a, err := NewAdapter(AdapterConfig{Provider: fp, Model: "m", Logger: logger})
		require.NoError(t, err)

		_, err = a.Invoke(context.Background(), "", nil, nil)
		require.Error(t, err)

		var invErr *InvocationError
		require.ErrorAs(t, err, &invErr)
		assert.Equal(t, "fake", invErr.Provider)
	})
}

func TestCollect(t *testing.T) {
	t.Run("assembles text and tool calls", func(t *testing.T) {
		s := NewStream()
		go func() {
			s.Push(Event{Type: EventText, Text: "Hel"})
			s.Push(Event{Type: EventText, Text: "lo"})
			s.Push(Event{Type: EventToolCall, ToolCall: &ToolCall{ID: "call_1", Name: "calculate"}})
			s.Finish(StopToolRequested, &Usage{InputTokens: 3, OutputTokens: 2})
		}()

		var fragments []string
		resp, err := Collect(s, func(text string) { fragments = append(fragments, text) })
		require.NoError(t, err)

		assert.Equal(t, "Hello", resp.Content)
		assert.Equal(t, []string{"Hel", "lo"}, fragments)
		require.Len(t, resp.ToolCalls, 1)
		assert.Equal(t, "calculate", resp.ToolCalls[0].Name)
		assert.Equal(t, StopToolRequested, resp.StopReason)
		require.NotNil(t, resp.Usage)
		assert.Equal(t, 3, resp.Usage.InputTokens)
	})

	t.Run("error event aborts collection", func(t *testing.T) {
		s := NewStream()
		go s.Fail(fmt.Errorf("stream broke"))

		_, err := Collect(s, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stream broke")
	})

	t.Run("missing terminal event is an error", func(t *testing.T) {
		s := NewStream()
		go close(s.events)

		_, err := Collect(s, nil)
		assert.Error(t, err)
	})
}

func TestNewProvider(t *testing.T) {
	t.Run("ollama needs no key", func(t *testing.T) {
		p, err := NewProvider(ProviderConfig{Provider: "ollama"})
		require.NoError(t, err)
		assert.Equal(t, "ollama", p.Name())
	})

	t.Run("openai requires key", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Provider: "openai"})
		assert.Error(t, err)
	})

	t.Run("anthropic requires key", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Provider: "anthropic"})
		assert.Error(t, err)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewProvider(ProviderConfig{Provider: "palm"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider")
	})
}
