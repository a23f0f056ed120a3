package agentrt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

func TestKnownToolGuardrailRefusesUnlistedTool(t *testing.T) {
	g := KnownToolGuardrail([]ToolName{ToolFileSearch})
	v := g.Check(context.Background(), llmmodel.ToolCall{Name: "web_search"})
	require.NotNil(t, v)
	require.Equal(t, "known_tool", v.Guardrail)
}

func TestKnownToolGuardrailApprovesListedTool(t *testing.T) {
	g := KnownToolGuardrail([]ToolName{ToolFileSearch})
	v := g.Check(context.Background(), llmmodel.ToolCall{Name: string(ToolFileSearch)})
	require.Nil(t, v)
}

func TestNonEmptyPayloadGuardrailRefusesEmptyOrNullPayload(t *testing.T) {
	g := NonEmptyPayloadGuardrail()
	require.NotNil(t, g.Check(context.Background(), llmmodel.ToolCall{Payload: nil}))
	require.NotNil(t, g.Check(context.Background(), llmmodel.ToolCall{Payload: []byte("null")}))
	require.Nil(t, g.Check(context.Background(), llmmodel.ToolCall{Payload: []byte(`{"query":"x"}`)}))
}

func TestChainReturnsFirstViolationInOrder(t *testing.T) {
	always := NewGuardrailFunc("always", func(context.Context, llmmodel.ToolCall) *Violation {
		return &Violation{Guardrail: "always", Reason: "nope"}
	})
	never := NewGuardrailFunc("never", func(context.Context, llmmodel.ToolCall) *Violation { return nil })

	v := Chain(context.Background(), []Guardrail{never, always}, llmmodel.ToolCall{})
	require.NotNil(t, v)
	require.Equal(t, "always", v.Guardrail)
}

func TestChainReturnsNilWhenAllApprove(t *testing.T) {
	never := NewGuardrailFunc("never", func(context.Context, llmmodel.ToolCall) *Violation { return nil })
	require.Nil(t, Chain(context.Background(), []Guardrail{never, never}, llmmodel.ToolCall{}))
}

func TestViolationErrorFormatsGuardrailAndReason(t *testing.T) {
	v := &Violation{Guardrail: "known_tool", Reason: "tool \"x\" is not offered this turn"}
	require.Contains(t, v.Error(), "known_tool")
	require.Contains(t, v.Error(), "not offered this turn")
}
