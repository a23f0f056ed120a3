package agentrt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

// rescuePromptTemplate mirrors the repair-prompt shape used to coax an LLM
// into redoing malformed output: state what went wrong, show the original
// text, ask for corrected JSON only.
const rescuePromptTemplate = `The previous response was not valid JSON.
Parse error: %s
Original response:
%s
Return only the corrected JSON object, with no surrounding text.`

// Rescuer reformats a malformed JSON response using a cheaper model. It is
// invoked at most once per Shaper attempt; a second failure is a terminal
// schema error, never silently retried again.
type Rescuer struct {
	client llmmodel.Client
	model  string
}

// NewRescuer builds a Rescuer backed by client, which should be configured
// with a cheap/fast model (ModelClassRescue) rather than the Shaper's model.
func NewRescuer(client llmmodel.Client, model string) *Rescuer {
	return &Rescuer{client: client, model: model}
}

// Rescue attempts to turn malformed text into valid JSON matching into. It
// returns the raw corrected JSON on success. Callers are responsible for
// enforcing the at-most-once invocation policy; Rescue itself performs a
// single model call and does not retry.
func (r *Rescuer) Rescue(ctx context.Context, malformed string, parseErr error) (json.RawMessage, error) {
	prompt := fmt.Sprintf(rescuePromptTemplate, parseErr.Error(), malformed)
	req := &llmmodel.Request{
		Model:      r.model,
		ModelClass: llmmodel.ModelClassRescue,
		Messages: []*llmmodel.Message{
			{Role: llmmodel.RoleUser, Parts: []llmmodel.Part{llmmodel.TextPart{Text: prompt}}},
		},
		Temperature: 0,
		MaxTokens:   4096,
	}
	resp, err := r.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("agentrt: rescue call failed: %w", err)
	}
	text := firstText(resp)
	if text == "" {
		return nil, fmt.Errorf("agentrt: rescue response had no text content")
	}
	var probe any
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return nil, fmt.Errorf("agentrt: rescue response is still not valid JSON: %w", err)
	}
	return json.RawMessage(text), nil
}

func firstText(resp *llmmodel.Response) string {
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if t, ok := part.(llmmodel.TextPart); ok && t.Text != "" {
				return t.Text
			}
		}
	}
	return ""
}
