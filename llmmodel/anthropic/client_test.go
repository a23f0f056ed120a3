package anthropic

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

func TestToolInputSchemaNilReturnsZeroValue(t *testing.T) {
	schema, err := toolInputSchema(nil)
	require.NoError(t, err)
	require.Nil(t, schema.ExtraFields)
}

func TestToolInputSchemaFromRawMessage(t *testing.T) {
	schema, err := toolInputSchema(json.RawMessage(`{"type":"object"}`))
	require.NoError(t, err)
	require.Equal(t, "object", schema.ExtraFields["type"])
}

func TestToolInputSchemaFromMap(t *testing.T) {
	schema, err := toolInputSchema(map[string]any{"type": "object", "required": []string{"query"}})
	require.NoError(t, err)
	require.Equal(t, "object", schema.ExtraFields["type"])
}

func TestEncodeToolChoiceAutoReturnsZeroValue(t *testing.T) {
	choice, err := encodeToolChoice(&llmmodel.ToolChoice{Mode: llmmodel.ToolChoiceAuto})
	require.NoError(t, err)
	require.Nil(t, choice.OfNone)
	require.Nil(t, choice.OfAny)
	require.Nil(t, choice.OfTool)
}

func TestEncodeToolChoiceNoneSetsOfNone(t *testing.T) {
	choice, err := encodeToolChoice(&llmmodel.ToolChoice{Mode: llmmodel.ToolChoiceNone})
	require.NoError(t, err)
	require.NotNil(t, choice.OfNone)
}

func TestEncodeToolChoiceAnySetsOfAny(t *testing.T) {
	choice, err := encodeToolChoice(&llmmodel.ToolChoice{Mode: llmmodel.ToolChoiceAny})
	require.NoError(t, err)
	require.NotNil(t, choice.OfAny)
}

func TestEncodeToolChoiceToolRequiresName(t *testing.T) {
	_, err := encodeToolChoice(&llmmodel.ToolChoice{Mode: llmmodel.ToolChoiceTool})
	require.Error(t, err)
}

func TestEncodeToolChoiceToolSetsOfTool(t *testing.T) {
	choice, err := encodeToolChoice(&llmmodel.ToolChoice{Mode: llmmodel.ToolChoiceTool, Name: "dataset_resolver"})
	require.NoError(t, err)
	require.NotNil(t, choice.OfTool)
}

func TestEncodeToolChoiceUnsupportedModeErrors(t *testing.T) {
	_, err := encodeToolChoice(&llmmodel.ToolChoice{Mode: "bogus"})
	require.Error(t, err)
}

type stubMessagesClient struct{}

func (stubMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return nil, nil
}

func TestNewRejectsNilMessagesClient(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "claude-3"})
	require.Error(t, err)
}

func TestNewRejectsEmptyDefaultModel(t *testing.T) {
	_, err := New(stubMessagesClient{}, Options{})
	require.Error(t, err)
}

func TestNewFromAPIKeyRejectsEmptyKey(t *testing.T) {
	_, err := NewFromAPIKey("", "claude-3")
	require.Error(t, err)
}

func TestPrepareRequestFailsWithNoMessages(t *testing.T) {
	client, err := New(stubMessagesClient{}, Options{DefaultModel: "claude-3"})
	require.NoError(t, err)
	_, err = client.prepareRequest(&llmmodel.Request{})
	require.Error(t, err)
}

func TestPrepareRequestFailsWithoutMaxTokens(t *testing.T) {
	client, err := New(stubMessagesClient{}, Options{DefaultModel: "claude-3"})
	require.NoError(t, err)
	req := &llmmodel.Request{Messages: []*llmmodel.Message{
		{Role: llmmodel.RoleUser, Parts: []llmmodel.Part{llmmodel.TextPart{Text: "hi"}}},
	}}
	_, err = client.prepareRequest(req)
	require.Error(t, err)
}
