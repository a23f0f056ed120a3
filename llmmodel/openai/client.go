// Package openai implements llmmodel.Client on top of the OpenAI Chat
// Completions API using github.com/openai/openai-go. It is used for the
// Shaper stage of plan synthesis, which asks the model to emit a response
// that conforms to the Plan v1.1 JSON Schema via response_format.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

// ChatClient captures the subset of the openai-go client used by the adapter.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
}

// Client implements llmmodel.Client for OpenAI Chat Completions.
type Client struct {
	chat  ChatClient
	model string
}

// New builds a Client from an existing chat-completions client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, model: modelID}, nil
}

// NewFromAPIKey builds a Client using the default openai-go HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, Options{DefaultModel: defaultModel})
}

func (c *Client) Complete(ctx context.Context, req *llmmodel.Request) (*llmmodel.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp), nil
}

func (c *Client) Stream(ctx context.Context, req *llmmodel.Request) (llmmodel.Streamer, error) {
	return nil, errors.New("openai: streaming is not used by the plan synthesis stages")
}

func (c *Client) prepareRequest(req *llmmodel.Request) (*sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if tools, err := encodeTools(req.Tools); err != nil {
		return nil, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}
	if req.Format != nil && req.Format.JSONSchema != nil {
		schema, err := toRawSchema(req.Format.JSONSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: response schema: %w", err)
		}
		name := req.Format.Name
		if name == "" {
			name = "response"
		}
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: schema,
					Strict: sdk.Bool(true),
				},
			},
		}
	}
	return &params, nil
}

func encodeMessages(msgs []*llmmodel.Message) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		var text strings.Builder
		for _, p := range m.Parts {
			if v, ok := p.(llmmodel.TextPart); ok {
				text.WriteString(v.Text)
			}
		}
		content := text.String()
		switch m.Role {
		case llmmodel.RoleSystem:
			out = append(out, sdk.SystemMessage(content))
		case llmmodel.RoleUser:
			out = append(out, sdk.UserMessage(content))
		case llmmodel.RoleAssistant:
			out = append(out, sdk.AssistantMessage(content))
		default:
			return nil, fmt.Errorf("openai: unsupported role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func encodeTools(defs []*llmmodel.ToolDefinition) ([]sdk.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		schema, err := toRawSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q schema: %w", def.Name, err)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: sdk.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return out, nil
}

func toRawSchema(schema any) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func translateResponse(resp *sdk.ChatCompletion) *llmmodel.Response {
	out := &llmmodel.Response{}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = llmmodel.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		}
	}
	for _, choice := range resp.Choices {
		out.StopReason = string(choice.FinishReason)
		msg := choice.Message
		if msg.Content != "" {
			out.Content = append(out.Content, llmmodel.Message{
				Role:  llmmodel.RoleAssistant,
				Parts: []llmmodel.Part{llmmodel.TextPart{Text: msg.Content}},
			})
		}
		for _, call := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, llmmodel.ToolCall{
				ID:      call.ID,
				Name:    call.Function.Name,
				Payload: json.RawMessage(call.Function.Arguments),
			})
		}
	}
	return out
}
