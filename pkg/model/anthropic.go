package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider on the Anthropic messages API.
// It is the one backend that reports stop-sequence truncation
// distinctly, which maps directly onto StopTruncated.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Stream makes the API call and emits its content as an event stream.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (*Stream, error) {
	anthropicMessages := []anthropic.MessageParam{}

	for _, msg := range req.Messages {
		switch {
		case msg.Role == "tool":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case msg.Role == "assistant":
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		case msg.Role == "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  anthropicMessages,
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	params.Temperature = anthropic.Float(req.Temperature)
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if req.TopK > 0 {
		params.TopK = anthropic.Int(int64(req.TopK))
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}

	if len(req.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, schema := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        schema.Name,
				Description: anthropic.String(schema.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.InputSchema["properties"],
				},
			}
			if required, ok := schema.InputSchema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	stream := NewStream()
	go func() {
		toolCalls := 0
		for _, block := range response.Content {
			switch b := block.AsAny().(type) {
			case anthropic.TextBlock:
				if b.Text != "" {
					stream.Push(Event{Type: EventText, Text: b.Text})
				}
			case anthropic.ToolUseBlock:
				var args map[string]interface{}
				if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
					stream.Fail(fmt.Errorf("failed to parse tool input: %w", err))
					return
				}
				toolCalls++
				stream.Push(Event{Type: EventToolCall, ToolCall: &ToolCall{
					ID:        b.ID,
					Name:      b.Name,
					Arguments: args,
				}})
			}
		}

		reason := StopAnswered
		switch response.StopReason {
		case anthropic.StopReasonToolUse:
			reason = StopToolRequested
		case anthropic.StopReasonStopSequence:
			reason = StopTruncated
		}
		if toolCalls > 0 {
			reason = StopToolRequested
		}

		stream.Finish(reason, &Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		})
	}()

	return stream, nil
}
