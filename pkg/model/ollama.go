package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// OllamaProvider streams chat completions from a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaProvider creates an Ollama provider. An empty baseURL
// defaults to the standard local endpoint.
func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Local models with tools bound can be slow to first token.
			Timeout: 5 * time.Minute,
		},
	}
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model    string                   `json:"model"`
	Messages []ollamaMessage          `json:"messages"`
	Stream   bool                     `json:"stream"`
	Tools    []map[string]interface{} `json:"tools,omitempty"`
	Options  *ollamaOptions           `json:"options,omitempty"`
}

type ollamaChatChunk struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Stream sends a streaming chat request and adapts the NDJSON chunk
// sequence into the provider-neutral event stream.
func (p *OllamaProvider) Stream(ctx context.Context, req Request) (*Stream, error) {
	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		messages = append(messages, om)
	}

	var tools []map[string]interface{}
	for _, schema := range req.Tools {
		tools = append(tools, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        schema.Name,
				"description": schema.Description,
				"parameters":  schema.InputSchema,
			},
		})
	}

	chatReq := ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		Tools:    tools,
		Options: &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			TopK:        req.TopK,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		},
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(data))
	}

	stream := NewStream()
	go p.consume(resp.Body, stream)

	return stream, nil
}

// consume reads NDJSON chunks off the wire and emits events. Ollama
// reports tool calls on the final chunks without IDs; synthetic IDs are
// assigned so tool results can be correlated in history.
func (p *OllamaProvider) consume(body io.ReadCloser, stream *Stream) {
	defer body.Close()

	decoder := json.NewDecoder(body)
	sawToolCalls := false
	var usage *Usage

	for {
		var chunk ollamaChatChunk
		if err := decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			stream.Fail(fmt.Errorf("failed to decode stream chunk: %w", err))
			return
		}

		if chunk.Message.Content != "" {
			stream.Push(Event{Type: EventText, Text: chunk.Message.Content})
		}

		for _, otc := range chunk.Message.ToolCalls {
			sawToolCalls = true
			id, err := gonanoid.New()
			if err != nil {
				stream.Fail(fmt.Errorf("failed to generate tool call id: %w", err))
				return
			}
			stream.Push(Event{Type: EventToolCall, ToolCall: &ToolCall{
				ID:        "call_" + id,
				Name:      otc.Function.Name,
				Arguments: otc.Function.Arguments,
			}})
		}

		if chunk.Done {
			usage = &Usage{
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			}
			log.Debug().
				Str("done_reason", chunk.DoneReason).
				Bool("tool_calls", sawToolCalls).
				Msg("Ollama stream finished")
			break
		}
	}

	reason := StopAnswered
	if sawToolCalls {
		reason = StopToolRequested
	}
	stream.Finish(reason, usage)
}
