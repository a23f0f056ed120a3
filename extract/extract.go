// Package extract implements the Extractor agent role: a single-tool
// (file-search), structured-output LLM call that turns a paper's indexed
// text into a list of quantitative Claim records, followed by output
// guardrails. Persisting the claims is left to the caller.
package extract

import (
	"context"
	"encoding/json"
	"time"

	"github.com/PIP-Team-3/paper2notebook/agentrt"
	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/llmmodel"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
)

// DefaultMinConfidence is the policy-configurable minimum confidence a claim
// must carry to survive the output guardrail.
const DefaultMinConfidence = 0.5

// claimsSchema is the JSON Schema bound to the Extractor's structured
// output: a non-empty list of claim records.
var claimsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"claims": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"dataset_name", "metric_name", "metric_value", "source_citation", "confidence"},
				"properties": map[string]any{
					"dataset_name":          map[string]any{"type": "string"},
					"split":                 map[string]any{"type": "string"},
					"metric_name":           map[string]any{"type": "string"},
					"metric_value":          map[string]any{"type": "number"},
					"units":                 map[string]any{"type": "string"},
					"method_snippet":        map[string]any{"type": "string"},
					"source_citation":       map[string]any{"type": "string"},
					"confidence":            map[string]any{"type": "number"},
					"dataset_format":        map[string]any{"type": "string"},
					"dataset_target_column": map[string]any{"type": "string"},
					"dataset_preprocessing": map[string]any{"type": "string"},
					"dataset_url":           map[string]any{"type": "string"},
				},
			},
		},
	},
	"required": []string{"claims"},
}

type claimDraft struct {
	DatasetName         string  `json:"dataset_name"`
	Split               string  `json:"split"`
	MetricName          string  `json:"metric_name"`
	MetricValue         float64 `json:"metric_value"`
	Units               string  `json:"units"`
	MethodSnippet       string  `json:"method_snippet"`
	SourceCitation      string  `json:"source_citation"`
	Confidence          float64 `json:"confidence"`
	DatasetFormat       string  `json:"dataset_format"`
	DatasetTargetColumn string  `json:"dataset_target_column"`
	DatasetPreprocessing string `json:"dataset_preprocessing"`
	DatasetURL          string  `json:"dataset_url"`
}

type claimsDraft struct {
	Claims []claimDraft `json:"claims"`
}

// EventSink receives extraction progress events. Run emits "start",
// "file_search_call", "complete", or "error"; pipeline.Service.Extract adds
// "persist_start" and "persist_done" around storing the claims. No
// "token_delta" events are emitted: the model call is not streamed.
type EventSink func(eventType string, detail string)

// Request carries everything a single Extract call needs.
type Request struct {
	Client      llmmodel.Client
	Model       string
	PaperID     string
	PaperTitle  string
	IndexHandle string
	MinConfidence float64
	Sink        EventSink
}

func buildRequest(req Request) *llmmodel.Request {
	prompt := "Extract every quantitative claim (dataset, metric, value) reported in this paper. " +
		"Use file_search to locate the relevant passages. For each claim, cite the exact passage " +
		"you drew it from. Paper title: " + req.PaperTitle
	return &llmmodel.Request{
		Model:      req.Model,
		ModelClass: llmmodel.ModelClassShaper,
		Messages: []*llmmodel.Message{
			{Role: llmmodel.RoleUser, Parts: []llmmodel.Part{llmmodel.TextPart{Text: prompt}}},
		},
		Tools: []*llmmodel.ToolDefinition{
			{
				Name:        string(agentrt.ToolFileSearch),
				Description: "Search the paper's indexed text bound to index handle " + req.IndexHandle + ".",
				InputSchema: map[string]any{
					"type":       "object",
					"required":   []string{"query"},
					"properties": map[string]any{"query": map[string]any{"type": "string"}},
				},
			},
		},
		Temperature: 0,
		MaxTokens:   4096,
		Format:      &llmmodel.ResponseFormat{JSONSchema: claimsSchema, Name: "claims_v1"},
	}
}

// emit calls sink if non-nil; never panics on a nil sink.
func emit(sink EventSink, eventType, detail string) {
	if sink != nil {
		sink(eventType, detail)
	}
}

// Run executes the Extractor agent and returns validated, guardrail-passed
// claims. It does not persist them; the caller (pipeline.Service.Extract)
// owns the replace-policy transaction.
func Run(ctx context.Context, req Request) ([]*entities.Claim, string, error) {
	if req.MinConfidence <= 0 {
		req.MinConfidence = DefaultMinConfidence
	}
	emit(req.Sink, "start", req.PaperID)

	caps := agentrt.NewCapsState(agentrt.Caps{MaxFileSearchCalls: 10, TimeBudget: 5 * time.Minute}, time.Now())
	llmReq := buildRequest(req)

	var lastText string
	for turn := 0; turn < 4; turn++ {
		resp, err := req.Client.Complete(ctx, llmReq)
		if err != nil {
			emit(req.Sink, "error", err.Error())
			return nil, "", p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeLLMFailure, err)
		}
		if len(resp.ToolCalls) == 0 {
			lastText = responseText(resp)
			break
		}
		llmReq.Messages = append(llmReq.Messages, &llmmodel.Message{
			Role:  llmmodel.RoleAssistant,
			Parts: toolUseParts(resp.ToolCalls),
		})
		for _, tc := range resp.ToolCalls {
			if !caps.Allowed(agentrt.ToolFileSearch, time.Now()) {
				return nil, "", p2nerrors.New(p2nerrors.KindPolicy, p2nerrors.CodeToolCapExceeded, "file-search cap exceeded during extraction")
			}
			emit(req.Sink, "file_search_call", string(tc.Payload))
			caps.Consume(agentrt.ToolFileSearch, time.Second)
			llmReq.Messages = append(llmReq.Messages, &llmmodel.Message{
				Role: llmmodel.RoleUser,
				Parts: []llmmodel.Part{llmmodel.ToolResultPart{
					ToolUseID: tc.ID,
					Content:   `{"status":"ok","passages":[]}`,
				}},
			})
		}
	}

	var draft claimsDraft
	if err := json.Unmarshal([]byte(lastText), &draft); err != nil {
		emit(req.Sink, "error", err.Error())
		return nil, lastText, p2nerrors.Wrap(p2nerrors.KindSchema, p2nerrors.CodePlanSchemaInvalid, err)
	}

	claims, err := guardAndConvert(draft, req.PaperID, req.MinConfidence)
	if err != nil {
		emit(req.Sink, "error", err.Error())
		return nil, lastText, err
	}

	emit(req.Sink, "complete", req.PaperID)
	return claims, lastText, nil
}

func responseText(resp *llmmodel.Response) string {
	var out string
	for _, msg := range resp.Content {
		for _, part := range msg.Parts {
			if t, ok := part.(llmmodel.TextPart); ok {
				out += t.Text
			}
		}
	}
	return out
}

func toolUseParts(calls []llmmodel.ToolCall) []llmmodel.Part {
	parts := make([]llmmodel.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, llmmodel.ToolUsePart{ID: c.ID, Name: c.Name, Input: c.Payload})
	}
	return parts
}

// guardAndConvert applies the output guardrails (≥1 claim, every claim has a
// non-empty citation, minimum confidence) and converts surviving drafts to
// entities.Claim.
func guardAndConvert(draft claimsDraft, paperID string, minConfidence float64) ([]*entities.Claim, error) {
	if len(draft.Claims) == 0 {
		return nil, p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodeGuardrailTripped, "extractor returned zero claims")
	}
	claims := make([]*entities.Claim, 0, len(draft.Claims))
	for _, c := range draft.Claims {
		if c.SourceCitation == "" {
			return nil, p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodeGuardrailTripped, "a claim is missing its source citation")
		}
		if c.Confidence < minConfidence {
			continue
		}
		claims = append(claims, &entities.Claim{
			PaperID:              paperID,
			DatasetName:          c.DatasetName,
			Split:                c.Split,
			MetricName:           c.MetricName,
			MetricValue:          c.MetricValue,
			Units:                c.Units,
			MethodSnippet:        c.MethodSnippet,
			SourceCitation:       c.SourceCitation,
			Confidence:           c.Confidence,
			DatasetFormat:        c.DatasetFormat,
			DatasetTargetColumn:  c.DatasetTargetColumn,
			DatasetPreprocessing: c.DatasetPreprocessing,
			DatasetURL:           c.DatasetURL,
		})
	}
	if len(claims) == 0 {
		return nil, p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodeGuardrailTripped, "no claim met the minimum confidence threshold")
	}
	return claims, nil
}
