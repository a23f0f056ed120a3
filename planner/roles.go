package planner

import (
	"encoding/json"

	"github.com/PIP-Team-3/paper2notebook/agentrt"
	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

// ReasonerTools returns the five tool definitions bound to Stage 1
// (Reasoner): paper file-search, web search, dataset_resolver,
// license_checker, and budget_estimator. Schemas are intentionally small,
// hand-rolled JSON Schema maps.
func ReasonerTools() []*llmmodel.ToolDefinition {
	return []*llmmodel.ToolDefinition{
		{
			Name:        string(agentrt.ToolFileSearch),
			Description: "Search the paper's indexed text for passages relevant to a query.",
			InputSchema: map[string]any{
				"type":       "object",
				"required":   []string{"query"},
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
			},
		},
		{
			Name:        string(agentrt.ToolWebSearch),
			Description: "Search the web for supplementary context (dataset documentation, license terms).",
			InputSchema: map[string]any{
				"type":       "object",
				"required":   []string{"query"},
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
			},
		},
		{
			Name:        string(agentrt.ToolDatasetResolver),
			Description: "Classify a dataset name reference against the registry and block list.",
			InputSchema: map[string]any{
				"type":       "object",
				"required":   []string{"name"},
				"properties": map[string]any{"name": map[string]any{"type": "string"}},
			},
		},
		{
			Name:        "license_checker",
			Description: "Report the license tag associated with a dataset or model name, if known.",
			InputSchema: map[string]any{
				"type":       "object",
				"required":   []string{"name"},
				"properties": map[string]any{"name": map[string]any{"type": "string"}},
			},
		},
		{
			Name:        "budget_estimator",
			Description: "Estimate whether a given epochs/dataset-size combination fits a CPU-only wall-clock budget.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"epochs", "dataset_size_mb"},
				"properties": map[string]any{
					"epochs":          map[string]any{"type": "integer"},
					"dataset_size_mb": map[string]any{"type": "integer"},
				},
			},
		},
	}
}

// ReasonerCaps are the tool-usage caps enforced for the Reasoner turn.
func ReasonerCaps() agentrt.Caps { return agentrt.DefaultCaps() }

// ShaperRequest builds the Stage 2 request: the Reasoner's transcript plus
// an instruction to emit a single JSON object conforming to the Plan v1.1
// schema, no tools, low temperature.
func ShaperRequest(model string, reasonerTranscript []*llmmodel.Message, planSchema any) *llmmodel.Request {
	messages := append([]*llmmodel.Message{}, reasonerTranscript...)
	messages = append(messages, &llmmodel.Message{
		Role: llmmodel.RoleUser,
		Parts: []llmmodel.Part{llmmodel.TextPart{
			Text: "Produce a single JSON object conforming exactly to the Plan v1.1 schema. Output JSON only, no prose.",
		}},
	})
	return &llmmodel.Request{
		Model:       model,
		ModelClass:  llmmodel.ModelClassShaper,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   4096,
		Format:      &llmmodel.ResponseFormat{JSONSchema: planSchema, Name: "plan_v1_1"},
	}
}

// ReasonerRequest builds the Stage 1 request: unconstrained output, the five
// tools above, and an instruction to quote the paper for each decision.
func ReasonerRequest(model string, paperTitle string, claimSummaries []string) *llmmodel.Request {
	var claimsText string
	for _, c := range claimSummaries {
		claimsText += "- " + c + "\n"
	}
	prompt := "Paper: " + paperTitle + "\n\nClaims under consideration:\n" + claimsText +
		"\n\nPropose a CPU-only reproduction strategy: pick one dataset, one model, a training " +
		"configuration, and a primary metric with goal value. Quote the paper for each decision. " +
		"Use the available tools to verify dataset availability, licensing, and budget feasibility."
	return &llmmodel.Request{
		Model:      model,
		ModelClass: llmmodel.ModelClassReasoner,
		Messages: []*llmmodel.Message{
			{Role: llmmodel.RoleUser, Parts: []llmmodel.Part{llmmodel.TextPart{Text: prompt}}},
		},
		Tools:     ReasonerTools(),
		MaxTokens: 4096,
	}
}

// decodeToolCallArgs is a small helper used by the Reasoner's tool dispatch
// loop to decode a ToolCall payload into a typed argument struct.
func decodeToolCallArgs[T any](call llmmodel.ToolCall) (T, error) {
	var args T
	err := json.Unmarshal(call.Payload, &args)
	return args, err
}
