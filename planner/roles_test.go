package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/agentrt"
	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

func TestReasonerToolsIncludesAllFiveTools(t *testing.T) {
	tools := ReasonerTools()
	require.Len(t, tools, 5)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	require.Contains(t, names, "file_search")
	require.Contains(t, names, "web_search")
	require.Contains(t, names, "dataset_resolver")
	require.Contains(t, names, "license_checker")
	require.Contains(t, names, "budget_estimator")
}

func TestReasonerCapsMatchesDefaultCaps(t *testing.T) {
	require.Equal(t, agentrt.DefaultCaps(), ReasonerCaps())
}

func TestShaperRequestAppendsFinalInstructionAndSchema(t *testing.T) {
	transcript := []*llmmodel.Message{{Role: llmmodel.RoleAssistant, Parts: []llmmodel.Part{llmmodel.TextPart{Text: "reasoning"}}}}
	req := ShaperRequest("shaper-model", transcript, map[string]any{"type": "object"})
	require.Equal(t, "shaper-model", req.Model)
	require.Equal(t, llmmodel.ModelClassShaper, req.ModelClass)
	require.Len(t, req.Messages, 2)
	require.Equal(t, llmmodel.RoleUser, req.Messages[1].Role)
	require.NotNil(t, req.Format)
	require.Equal(t, "plan_v1_1", req.Format.Name)
}

func TestReasonerRequestIncludesToolsAndClaims(t *testing.T) {
	req := ReasonerRequest("reasoner-model", "Attention Is All You Need", []string{"achieves 28.4 BLEU"})
	require.Equal(t, "reasoner-model", req.Model)
	require.Equal(t, llmmodel.ModelClassReasoner, req.ModelClass)
	require.Len(t, req.Tools, 5)
	require.Len(t, req.Messages, 1)
	text := req.Messages[0].Parts[0].(llmmodel.TextPart).Text
	require.Contains(t, text, "Attention Is All You Need")
	require.Contains(t, text, "achieves 28.4 BLEU")
}

func TestDecodeToolCallArgsDecodesTypedPayload(t *testing.T) {
	type args struct {
		Name string `json:"name"`
	}
	call := llmmodel.ToolCall{Payload: []byte(`{"name":"sst2"}`)}
	decoded, err := decodeToolCallArgs[args](call)
	require.NoError(t, err)
	require.Equal(t, "sst2", decoded.Name)
}

func TestDecodeToolCallArgsFailsOnMalformedPayload(t *testing.T) {
	type args struct {
		Name string `json:"name"`
	}
	call := llmmodel.ToolCall{Payload: []byte(`not json`)}
	_, err := decodeToolCallArgs[args](call)
	require.Error(t, err)
}
