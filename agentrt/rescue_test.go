package agentrt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

type fakeRescueClient struct {
	resp *llmmodel.Response
	err  error
}

func (f fakeRescueClient) Complete(ctx context.Context, req *llmmodel.Request) (*llmmodel.Response, error) {
	return f.resp, f.err
}

func (f fakeRescueClient) Stream(ctx context.Context, req *llmmodel.Request) (llmmodel.Streamer, error) {
	panic("not used")
}

func textOnlyResponse(text string) *llmmodel.Response {
	return &llmmodel.Response{Content: []llmmodel.Message{
		{Role: llmmodel.RoleAssistant, Parts: []llmmodel.Part{llmmodel.TextPart{Text: text}}},
	}}
}

func TestRescueReturnsCorrectedJSONOnSuccess(t *testing.T) {
	client := fakeRescueClient{resp: textOnlyResponse(`{"ok":true}`)}
	rescuer := NewRescuer(client, "rescue-model")

	out, err := rescuer.Rescue(context.Background(), "{ok:true", errors.New("invalid character 'o'"))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(out))
}

func TestRescueFailsWhenModelCallErrors(t *testing.T) {
	client := fakeRescueClient{err: errors.New("provider unavailable")}
	rescuer := NewRescuer(client, "rescue-model")

	_, err := rescuer.Rescue(context.Background(), "{", errors.New("eof"))
	require.Error(t, err)
}

func TestRescueFailsWhenResponseHasNoText(t *testing.T) {
	client := fakeRescueClient{resp: &llmmodel.Response{}}
	rescuer := NewRescuer(client, "rescue-model")

	_, err := rescuer.Rescue(context.Background(), "{", errors.New("eof"))
	require.Error(t, err)
}

func TestRescueFailsWhenCorrectedTextIsStillInvalidJSON(t *testing.T) {
	client := fakeRescueClient{resp: textOnlyResponse("still not json")}
	rescuer := NewRescuer(client, "rescue-model")

	_, err := rescuer.Rescue(context.Background(), "{", errors.New("eof"))
	require.Error(t, err)
}
