// Package llmmodel defines the provider-agnostic chat message and streaming
// types shared by the Reasoner and Shaper stages of plan synthesis. It is a
// trimmed descendant of a much larger agent-runtime model package: P2N calls
// an LLM in exactly two shapes (freeform tool-using reasoning, then
// schema-constrained shaping) so the type set here only needs to cover text,
// tool use/result, and thinking parts, not the full multimodal surface.
package llmmodel

import (
	"context"
	"encoding/json"
)

// ConversationRole identifies the speaker for a Message.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// Part is implemented by every message content block.
type Part interface{ isPart() }

// TextPart is plain assistant- or user-visible text.
type TextPart struct {
	Text string
}

// ThinkingPart carries provider-issued reasoning content. Treated as opaque
// metadata; never parsed for control flow.
type ThinkingPart struct {
	Text      string
	Signature string
	Final     bool
}

// ToolUsePart declares a tool invocation requested by the model.
type ToolUsePart struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultPart carries the result of a prior ToolUsePart back to the model.
type ToolResultPart struct {
	ToolUseID string
	Content   any
	IsError   bool
}

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// Message is a single ordered entry in a conversation transcript.
type Message struct {
	Role  ConversationRole
	Parts []Part
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema any
}

// ToolChoiceMode controls how strongly a Request asks the model to use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice configures tool-use behavior for a Request.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// TokenUsage tracks token accounting for a single call, surfaced to the
// agent runtime's tool-usage/time budget tracking.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ModelClass selects a model family when Model is left empty.
type ModelClass string

const (
	ModelClassReasoner ModelClass = "reasoner"
	ModelClassShaper   ModelClass = "shaper"
	ModelClassRescue   ModelClass = "rescue" // cheaper model used by the JSON-rescue pass
)

// ResponseFormat constrains output shape. Used by the Shaper stage to force
// schema-conformant JSON; left zero-value for the free-form Reasoner stage.
type ResponseFormat struct {
	// JSONSchema, when non-nil, is a JSON Schema the provider enforces on the
	// textual response (not a tool call).
	JSONSchema any
	// Name is a short identifier for the schema, required by some providers.
	Name string
}

// Request captures the inputs to a single model invocation.
type Request struct {
	Model       string
	ModelClass  ModelClass
	Messages    []*Message
	Temperature float32
	MaxTokens   int
	Tools       []*ToolDefinition
	ToolChoice  *ToolChoice
	Format      *ResponseFormat
	Stream      bool
}

// Response is the result of a non-streaming invocation.
type Response struct {
	Content    []Message
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

// ToolCall is a single tool invocation requested by the model, with the
// payload normalized to canonical JSON by the provider adapter.
type ToolCall struct {
	ID      string
	Name    string
	Payload json.RawMessage
}

// Chunk is one streaming event. Only Type and one payload field are set.
type Chunk struct {
	Type       string
	Message    *Message
	ToolCall   *ToolCall
	UsageDelta *TokenUsage
	StopReason string
}

const (
	ChunkTypeText       = "text"
	ChunkTypeToolCall   = "tool_call"
	ChunkTypeUsageDelta = "usage_delta"
	ChunkTypeStop       = "stop"
)

// Client is the provider-agnostic model client implemented by each adapter.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
}

// Streamer delivers incremental output from a streaming call.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}
