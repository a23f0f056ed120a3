// Package agentrt is the agent runtime harness shared by the Reasoner stage
// of plan synthesis: it enforces per-tool usage caps, evaluates guardrail
// predicates over tool calls, and performs the at-most-once JSON rescue pass
// when a model's final text is not valid JSON.
package agentrt

import (
	"time"
)

// ToolName identifies one of the fixed tools exposed to the Reasoner.
type ToolName string

const (
	ToolFileSearch      ToolName = "file_search"
	ToolWebSearch       ToolName = "web_search"
	ToolCodeInterpreter ToolName = "code_interpreter"
	ToolDatasetResolver ToolName = "dataset_resolver"
)

// Caps are the fixed per-run tool usage limits.
type Caps struct {
	MaxFileSearchCalls     int
	MaxWebSearchCalls      int
	MaxCodeInterpreterSecs int
	TimeBudget             time.Duration
}

// DefaultCaps returns the caps named by the harness's tool-usage limits:
// file-search at most 10 calls, web-search at most 5 calls, code-interpreter
// limited to 60 wall-clock seconds total.
func DefaultCaps() Caps {
	return Caps{
		MaxFileSearchCalls:     10,
		MaxWebSearchCalls:      5,
		MaxCodeInterpreterSecs: 60,
		TimeBudget:             5 * time.Minute,
	}
}

// CapsState tracks the remaining budget for a single run. The runtime
// decrements it as tool calls execute; when a counter reaches zero the
// corresponding tool is dropped from the next turn's allowlist.
type CapsState struct {
	caps Caps

	remainingFileSearch int
	remainingWebSearch  int
	usedCodeInterpSecs  int
	deadline            time.Time
}

// NewCapsState seeds a CapsState from caps, anchoring the time budget deadline
// to start.
func NewCapsState(caps Caps, start time.Time) *CapsState {
	return &CapsState{
		caps:                caps,
		remainingFileSearch: caps.MaxFileSearchCalls,
		remainingWebSearch:  caps.MaxWebSearchCalls,
		deadline:            start.Add(caps.TimeBudget),
	}
}

// Allowed reports whether name is usable given remaining budget and now.
func (s *CapsState) Allowed(name ToolName, now time.Time) bool {
	if s.caps.TimeBudget > 0 && !now.Before(s.deadline) {
		return false
	}
	switch name {
	case ToolFileSearch:
		return s.remainingFileSearch > 0
	case ToolWebSearch:
		return s.remainingWebSearch > 0
	case ToolCodeInterpreter:
		return s.usedCodeInterpSecs < s.caps.MaxCodeInterpreterSecs
	default:
		return true
	}
}

// Consume records a completed tool call's usage. elapsed is only meaningful
// for ToolCodeInterpreter, whose budget is wall-clock seconds rather than a
// call count.
func (s *CapsState) Consume(name ToolName, elapsed time.Duration) {
	switch name {
	case ToolFileSearch:
		if s.remainingFileSearch > 0 {
			s.remainingFileSearch--
		}
	case ToolWebSearch:
		if s.remainingWebSearch > 0 {
			s.remainingWebSearch--
		}
	case ToolCodeInterpreter:
		s.usedCodeInterpSecs += int(elapsed.Round(time.Second) / time.Second)
	}
}

// Exhausted reports whether every capped tool has run out of budget, or the
// time budget has elapsed — the runtime uses this to force a final response.
func (s *CapsState) Exhausted(now time.Time) bool {
	if s.caps.TimeBudget > 0 && !now.Before(s.deadline) {
		return true
	}
	return s.remainingFileSearch <= 0 &&
		s.remainingWebSearch <= 0 &&
		s.usedCodeInterpSecs >= s.caps.MaxCodeInterpreterSecs
}

// AllowedTools filters candidates down to those still usable at now.
func (s *CapsState) AllowedTools(candidates []ToolName, now time.Time) []ToolName {
	out := make([]ToolName, 0, len(candidates))
	for _, c := range candidates {
		if s.Allowed(c, now) {
			out = append(out, c)
		}
	}
	return out
}
