package agentrt

import (
	"context"
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/llmmodel"
)

// Guardrail is a typed predicate evaluated against a proposed tool call
// before it executes. Guardrails never mutate state; they only approve or
// refuse.
type Guardrail interface {
	// Name identifies the guardrail for logging and violation reporting.
	Name() string
	// Check inspects a proposed tool call and returns a non-nil Violation if
	// the call should be refused.
	Check(ctx context.Context, call llmmodel.ToolCall) *Violation
}

// Violation describes why a guardrail refused a tool call.
type Violation struct {
	Guardrail string
	Reason    string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("guardrail %s refused call: %s", v.Guardrail, v.Reason)
}

// GuardrailFunc adapts a function to the Guardrail interface.
type GuardrailFunc struct {
	name  string
	check func(context.Context, llmmodel.ToolCall) *Violation
}

// NewGuardrailFunc builds a Guardrail from a name and predicate function.
func NewGuardrailFunc(name string, check func(context.Context, llmmodel.ToolCall) *Violation) Guardrail {
	return GuardrailFunc{name: name, check: check}
}

func (g GuardrailFunc) Name() string { return g.name }
func (g GuardrailFunc) Check(ctx context.Context, call llmmodel.ToolCall) *Violation {
	return g.check(ctx, call)
}

// Chain evaluates guardrails in order and returns the first violation, or nil
// if every guardrail approves the call.
func Chain(ctx context.Context, guardrails []Guardrail, call llmmodel.ToolCall) *Violation {
	for _, g := range guardrails {
		if v := g.Check(ctx, call); v != nil {
			return v
		}
	}
	return nil
}

// KnownToolGuardrail refuses any tool call whose name is not among the tools
// the Reasoner was offered this turn, preventing hallucinated tool names from
// ever reaching a dispatcher.
func KnownToolGuardrail(allowed []ToolName) Guardrail {
	set := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		set[string(t)] = true
	}
	return NewGuardrailFunc("known_tool", func(_ context.Context, call llmmodel.ToolCall) *Violation {
		if !set[call.Name] {
			return &Violation{Guardrail: "known_tool", Reason: fmt.Sprintf("tool %q is not offered this turn", call.Name)}
		}
		return nil
	})
}

// NonEmptyPayloadGuardrail refuses a tool call whose arguments payload is
// empty or the literal "null", which every tool in this harness treats as a
// malformed invocation rather than valid "no arguments" input.
func NonEmptyPayloadGuardrail() Guardrail {
	return NewGuardrailFunc("non_empty_payload", func(_ context.Context, call llmmodel.ToolCall) *Violation {
		if len(call.Payload) == 0 || string(call.Payload) == "null" {
			return &Violation{Guardrail: "non_empty_payload", Reason: "tool call arguments are empty"}
		}
		return nil
	})
}
