package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/PIP-Team-3/paper2notebook/agentrt"
	"github.com/PIP-Team-3/paper2notebook/dataset"
	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/llmmodel"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
	planschema "github.com/PIP-Team-3/paper2notebook/planner/schema"
)

// Clients groups the model clients used by the two stages plus the cheaper
// rescue model. TwoStageEnabled mirrors PLANNER_TWO_STAGE_ENABLED: when
// false, the Reasoner's own final text is fed straight to the sanitizer
// instead of being re-shaped, for providers that can't run a second role.
type Clients struct {
	Reasoner        llmmodel.Client
	ReasonerModel   string
	Shaper          llmmodel.Client
	ShaperModel     string
	Rescue          llmmodel.Client
	RescueModel     string
	TwoStageEnabled bool
}

// Input groups the caller-provided inputs to Synthesize.
type Input struct {
	PaperTitle     string
	ClaimSummaries []string
	RequestBudget  int
	Registry       *dataset.Registry
	BlockList      *dataset.BlockList
	Upload         *entities.DatasetUpload
	Bus            *agentrt.Bus
	RunID          string

	// DatasetTargetColumn is the extractor-captured target column for the
	// claims being planned (entities.Claim.DatasetTargetColumn), if any claim
	// carried one. Threaded into the sanitizer's upload-override step.
	DatasetTargetColumn string
}

// Result carries the synthesized plan plus the raw Stage-1 transcript, kept
// on the plan record for audit.
type Result struct {
	Plan             *entities.PlanDocument
	Stage1Transcript string
	RescueWasInvoked bool
	Warnings         []string
}

// compiledSchema is lazily compiled once per process.
var compiledSchema *jsonschema.Schema

func schemaDoc() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	s, err := planschema.CompilePlanV11()
	if err != nil {
		return nil, err
	}
	compiledSchema = s
	return s, nil
}

// Synthesize runs Stage 1 (Reasoner), optionally Stage 2 (Shaper), the
// JSON-rescue pass at most once, and finally the deterministic sanitizer.
func Synthesize(ctx context.Context, clients Clients, in Input) (*Result, error) {
	if in.Bus != nil {
		_ = in.Bus.Publish(ctx, agentrt.Event{Type: agentrt.EventTurnStarted, RunID: in.RunID, Detail: "reasoner"})
	}

	reasonerReq := ReasonerRequest(clients.ReasonerModel, in.PaperTitle, in.ClaimSummaries)
	reasonerResp, err := runReasoner(ctx, clients.Reasoner, reasonerReq, in.Bus, in.RunID, in.Registry, in.BlockList, in.Upload)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeLLMFailure, err)
	}
	transcript := reasonerText(reasonerResp)

	var rawPlan json.RawMessage
	rescued := false
	if clients.TwoStageEnabled && clients.Shaper != nil {
		sDoc, err := schemaDoc()
		if err != nil {
			return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeLLMFailure, err)
		}
		shaperMessages := []*llmmodel.Message{
			{Role: llmmodel.RoleUser, Parts: []llmmodel.Part{llmmodel.TextPart{Text: transcript}}},
		}
		shaperReq := ShaperRequest(clients.ShaperModel, shaperMessages, planschema.PlanV11JSON)
		shaperResp, err := clients.Shaper.Complete(ctx, shaperReq)
		if err != nil {
			return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeLLMFailure, err)
		}
		text := reasonerText(shaperResp)
		rawPlan, rescued, err = validateOrRescue(ctx, clients, text, transcript, sDoc)
		if err != nil {
			return nil, p2nerrors.Wrap(p2nerrors.KindSchema, p2nerrors.CodeTwoStageFailed, err)
		}
	} else {
		rawPlan = json.RawMessage(transcript)
	}

	draft, err := ParseDraft(rawPlan)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindSchema, p2nerrors.CodePlanSchemaInvalid, err)
	}

	sanitizeCtx := SanitizeContext{
		Registry:            in.Registry,
		BlockList:           in.BlockList,
		Upload:              in.Upload,
		RequestBudget:       in.RequestBudget,
		DatasetTargetColumn: in.DatasetTargetColumn,
	}
	plan, err := Sanitize(draft, sanitizeCtx)
	if err != nil {
		return nil, err
	}

	if in.Bus != nil {
		_ = in.Bus.Publish(ctx, agentrt.Event{Type: agentrt.EventTurnCompleted, RunID: in.RunID, Detail: "sanitized"})
	}

	return &Result{
		Plan:             plan,
		Stage1Transcript: transcript,
		RescueWasInvoked: rescued,
		Warnings:         draft.Warnings,
	}, nil
}

// validateOrRescue attempts to parse+validate text against the Plan v1.1
// schema. On failure it invokes the rescue pass exactly once. If the
// rescued output still fails validation, it falls back to parsing the
// Stage-1 transcript directly; only when that also fails against the
// schema is the two-stage pipeline considered terminally failed.
func validateOrRescue(ctx context.Context, clients Clients, text, stage1Transcript string, s *jsonschema.Schema) (json.RawMessage, bool, error) {
	if err := validateText(text, s); err == nil {
		return json.RawMessage(text), false, nil
	} else if clients.Rescue == nil {
		raw, _, ferr := fallbackToStage1(stage1Transcript, s, fmt.Errorf("schema invalid and no rescue client configured: %w", err))
		return raw, false, ferr
	} else {
		rescuer := agentrt.NewRescuer(clients.Rescue, clients.RescueModel)
		fixed, rescueErr := rescuer.Rescue(ctx, text, err)
		if rescueErr != nil {
			return fallbackToStage1(stage1Transcript, s, fmt.Errorf("schema invalid and rescue failed: %w", rescueErr))
		}
		if err := validateText(string(fixed), s); err != nil {
			return fallbackToStage1(stage1Transcript, s, fmt.Errorf("schema still invalid after rescue: %w", err))
		}
		return fixed, true, nil
	}
}

// fallbackToStage1 is reached when the Shaper's output (and, if attempted,
// the rescue pass) both failed schema validation. It parses the original
// Stage-1 reasoner transcript directly; only a Stage-1 failure too is
// terminal, surfaced as a two-stage-failed error wrapping the last cause.
func fallbackToStage1(stage1Transcript string, s *jsonschema.Schema, cause error) (json.RawMessage, bool, error) {
	if err := validateText(stage1Transcript, s); err != nil {
		return nil, true, fmt.Errorf("two-stage plan synthesis failed: stage-1 fallback also invalid: %w (stage-2 cause: %v)", err, cause)
	}
	return json.RawMessage(stage1Transcript), true, nil
}

func validateText(text string, s *jsonschema.Schema) error {
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

func reasonerText(resp *llmmodel.Response) string {
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

// runReasoner drives the Stage 1 tool-use loop: issue a Complete call,
// dispatch any requested tool calls through guardrails and caps, feed
// results back, and repeat until the model stops requesting tools or the
// caps are exhausted.
func runReasoner(ctx context.Context, client llmmodel.Client, req *llmmodel.Request, bus *agentrt.Bus, runID string, reg *dataset.Registry, bl *dataset.BlockList, upload *entities.DatasetUpload) (*llmmodel.Response, error) {
	caps := agentrt.NewCapsState(ReasonerCaps(), time.Now())
	guardrails := []agentrt.Guardrail{agentrt.NonEmptyPayloadGuardrail()}

	messages := append([]*llmmodel.Message{}, req.Messages...)
	for turn := 0; turn < 8; turn++ {
		turnReq := *req
		turnReq.Messages = messages
		resp, err := client.Complete(ctx, &turnReq)
		if err != nil {
			return nil, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp, nil
		}
		assistantParts := make([]llmmodel.Part, 0, len(resp.Content)+len(resp.ToolCalls))
		for _, m := range resp.Content {
			assistantParts = append(assistantParts, m.Parts...)
		}
		for _, tc := range resp.ToolCalls {
			assistantParts = append(assistantParts, llmmodel.ToolUsePart{ID: tc.ID, Name: tc.Name, Input: tc.Payload})
		}
		messages = append(messages, &llmmodel.Message{Role: llmmodel.RoleAssistant, Parts: assistantParts})

		resultParts := make([]llmmodel.Part, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			now := time.Now()
			if v := agentrt.Chain(ctx, guardrails, tc); v != nil {
				if bus != nil {
					_ = bus.Publish(ctx, agentrt.Event{Type: agentrt.EventGuardrailBlock, RunID: runID, ToolName: tc.Name, Detail: v.Reason})
				}
				resultParts = append(resultParts, llmmodel.ToolResultPart{ToolUseID: tc.ID, Content: v.Error(), IsError: true})
				continue
			}
			if !caps.Allowed(agentrt.ToolName(tc.Name), now) {
				resultParts = append(resultParts, llmmodel.ToolResultPart{
					ToolUseID: tc.ID,
					Content:   p2nerrors.New(p2nerrors.KindPolicy, p2nerrors.CodeToolCapExceeded, "tool cap exceeded").Error(),
					IsError:   true,
				})
				continue
			}
			if bus != nil {
				_ = bus.Publish(ctx, agentrt.Event{Type: agentrt.EventToolCalled, RunID: runID, ToolName: tc.Name})
			}
			result := dispatchTool(tc, reg, bl, upload)
			caps.Consume(agentrt.ToolName(tc.Name), time.Since(now))
			if bus != nil {
				_ = bus.Publish(ctx, agentrt.Event{Type: agentrt.EventToolResult, RunID: runID, ToolName: tc.Name})
			}
			resultParts = append(resultParts, llmmodel.ToolResultPart{ToolUseID: tc.ID, Content: result})
		}
		messages = append(messages, &llmmodel.Message{Role: llmmodel.RoleUser, Parts: resultParts})

		if caps.Exhausted(time.Now()) {
			turnReq := *req
			turnReq.Messages = messages
			turnReq.ToolChoice = &llmmodel.ToolChoice{Mode: llmmodel.ToolChoiceNone}
			return client.Complete(ctx, &turnReq)
		}
	}
	return nil, fmt.Errorf("planner: reasoner exceeded maximum turn count")
}

// dispatchTool executes a single Reasoner tool call. file_search and
// web_search are provider-native in a full deployment (routed through the
// model's own retrieval); dataset_resolver is evaluated in-process here
// against the registry and block-list. Every other tool, including
// license_checker and budget_estimator, gets a fixed {"status": "ok"}
// result.
func dispatchTool(tc llmmodel.ToolCall, reg *dataset.Registry, bl *dataset.BlockList, upload *entities.DatasetUpload) any {
	switch agentrt.ToolName(tc.Name) {
	case agentrt.ToolDatasetResolver:
		var args struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(tc.Payload, &args); err != nil {
			return map[string]any{"error": err.Error()}
		}
		result := dataset.Classify(args.Name, reg, bl, upload)
		return map[string]any{"classification": string(result.Classification)}
	default:
		return map[string]any{"status": "ok"}
	}
}
