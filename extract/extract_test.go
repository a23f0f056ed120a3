package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

type fakeClient struct {
	responses []*llmmodel.Response
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, req *llmmodel.Request) (*llmmodel.Response, error) {
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fakeClient) Stream(ctx context.Context, req *llmmodel.Request) (llmmodel.Streamer, error) {
	panic("not used")
}

func textResponse(text string) *llmmodel.Response {
	return &llmmodel.Response{
		Content: []llmmodel.Message{
			{Role: llmmodel.RoleAssistant, Parts: []llmmodel.Part{llmmodel.TextPart{Text: text}}},
		},
	}
}

const validClaimsJSON = `{"claims":[{"dataset_name":"sst2","metric_name":"accuracy","metric_value":0.883,"units":"%","source_citation":"p.5","confidence":0.9}]}`

func TestRunReturnsClaimsOnSingleTurnStructuredResponse(t *testing.T) {
	client := &fakeClient{responses: []*llmmodel.Response{textResponse(validClaimsJSON)}}

	claims, lastText, err := Run(context.Background(), Request{
		Client:      client,
		Model:       "test-model",
		PaperID:     "paper1",
		PaperTitle:  "A Test Paper",
		IndexHandle: "index_abc",
	})
	require.NoError(t, err)
	require.Equal(t, validClaimsJSON, lastText)
	require.Len(t, claims, 1)
	require.Equal(t, "sst2", claims[0].DatasetName)
	require.Equal(t, "paper1", claims[0].PaperID)
}

func TestRunFollowsToolCallThenReturnsStructuredOutput(t *testing.T) {
	toolCallResp := &llmmodel.Response{
		ToolCalls: []llmmodel.ToolCall{{ID: "tc1", Name: "file_search", Payload: []byte(`{"query":"accuracy"}`)}},
	}
	client := &fakeClient{responses: []*llmmodel.Response{toolCallResp, textResponse(validClaimsJSON)}}

	claims, _, err := Run(context.Background(), Request{Client: client, PaperID: "paper1", IndexHandle: "idx"})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, 2, client.calls)
}

func TestRunFailsOnUnparseableStructuredOutput(t *testing.T) {
	client := &fakeClient{responses: []*llmmodel.Response{textResponse("not json")}}
	_, _, err := Run(context.Background(), Request{Client: client, PaperID: "paper1", IndexHandle: "idx"})
	require.Error(t, err)
}

func TestGuardAndConvertFailsOnZeroClaims(t *testing.T) {
	_, err := guardAndConvert(claimsDraft{}, "paper1", DefaultMinConfidence)
	require.Error(t, err)
}

func TestGuardAndConvertFailsOnMissingCitation(t *testing.T) {
	draft := claimsDraft{Claims: []claimDraft{{MetricName: "accuracy", Confidence: 0.9}}}
	_, err := guardAndConvert(draft, "paper1", DefaultMinConfidence)
	require.Error(t, err)
}

func TestGuardAndConvertFiltersBelowMinConfidence(t *testing.T) {
	draft := claimsDraft{Claims: []claimDraft{
		{MetricName: "accuracy", SourceCitation: "p.1", Confidence: 0.9},
		{MetricName: "f1", SourceCitation: "p.2", Confidence: 0.1},
	}}
	claims, err := guardAndConvert(draft, "paper1", 0.5)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.Equal(t, "accuracy", claims[0].MetricName)
}

func TestGuardAndConvertFailsWhenAllClaimsBelowMinConfidence(t *testing.T) {
	draft := claimsDraft{Claims: []claimDraft{{MetricName: "accuracy", SourceCitation: "p.1", Confidence: 0.1}}}
	_, err := guardAndConvert(draft, "paper1", 0.5)
	require.Error(t, err)
}

func TestResponseTextConcatenatesAllTextParts(t *testing.T) {
	resp := &llmmodel.Response{
		Content: []llmmodel.Message{
			{Parts: []llmmodel.Part{llmmodel.TextPart{Text: "foo"}}},
			{Parts: []llmmodel.Part{llmmodel.TextPart{Text: "bar"}}},
		},
	}
	require.Equal(t, "foobar", responseText(resp))
}

func TestToolUseIDsCarryThroughToParts(t *testing.T) {
	parts := toolUseParts([]llmmodel.ToolCall{{ID: "tc1", Name: "file_search", Payload: []byte("{}")}})
	require.Len(t, parts, 1)
	use, ok := parts[0].(llmmodel.ToolUsePart)
	require.True(t, ok)
	require.Equal(t, "tc1", use.ID)
	require.Equal(t, "file_search", use.Name)
}
