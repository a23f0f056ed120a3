// Package p2nerrors defines the typed error taxonomy shared across the
// reproduction pipeline. Every stage boundary returns a *Error carrying one
// of six kinds so callers can branch on Kind/Code without string matching,
// while still composing with errors.Is/As through Unwrap.
package p2nerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by where in the pipeline it originated.
type Kind string

const (
	// KindInput marks a caller-fault error (bad payload, missing entity).
	KindInput Kind = "input"
	// KindPolicy marks a core refusal (cap exceeded, budget over ceiling, blocked dataset).
	KindPolicy Kind = "policy"
	// KindSchema marks an LLM or data-shape fault (invalid plan JSON, missing justification).
	KindSchema Kind = "schema"
	// KindExternal marks a provider or storage fault (LLM API, blob store, metadata store).
	KindExternal Kind = "external"
	// KindValidation marks a generator fault caught by the notebook validator.
	KindValidation Kind = "validation"
	// KindExecution marks a runtime fault inside the sandbox.
	KindExecution Kind = "execution"
)

// Well-known machine-readable codes surfaced in API responses and events.
const (
	CodeUnsupportedMediaType   = "UNSUPPORTED_MEDIA_TYPE"
	CodeOversizePayload        = "OVERSIZE_PAYLOAD"
	CodeFetchFailed            = "FETCH_FAILED"
	CodePaperNotFound          = "PAPER_NOT_FOUND"
	CodePlanNotFound           = "PLAN_NOT_FOUND"
	CodePaperNotReady          = "PAPER_NOT_READY"
	CodePlanNotMaterialized    = "PLAN_NOT_MATERIALIZED"
	CodeToolCapExceeded        = "POLICY_CAP_EXCEEDED"
	CodeBudgetExceedsCeiling   = "BUDGET_EXCEEDS_CEILING"
	CodePlanNoAllowedDatasets  = "PLAN_NO_ALLOWED_DATASETS"
	CodeGPURequested           = "GPU_REQUESTED"
	CodePlanSchemaInvalid      = "PLAN_SCHEMA_INVALID"
	CodeJustificationMissing   = "JUSTIFICATION_MISSING"
	CodePrimaryMetricAbsent    = "PRIMARY_METRIC_ABSENT"
	CodeGuardrailTripped       = "GUARDRAIL_TRIPPED"
	CodeTwoStageFailed         = "PLAN_TWO_STAGE_FAILED"
	CodeLLMFailure             = "LLM_FAILURE"
	CodeIndexCreationFailed    = "INDEX_CREATION_FAILED"
	CodeBlobStoreFailure       = "BLOB_STORE_FAILURE"
	CodeMetadataStoreFailure   = "METADATA_STORE_FAILURE"
	CodeNotebookSyntaxError    = "NOTEBOOK_SYNTAX_ERROR"
	CodeNotebookValidationFail = "NOTEBOOK_VALIDATION_FAILED"
	CodeCellFailed             = "CELL_FAILED"
	CodeMetricsMissing         = "METRICS_MISSING"
	CodeRunTimeout             = "RUN_TIMEOUT"
	CodeRateLimited            = "LLM_RATE_LIMITED"
)

// Error is a structured pipeline failure. It preserves a causal chain via
// Cause so errors.Is/As keep working across stage boundaries.
type Error struct {
	Kind            Kind
	Code            string
	Message         string
	RemediationHint string
	Cause           error
}

// New constructs an *Error with no cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf formats Message according to a format specifier.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that chains an underlying cause.
func Wrap(kind Kind, code string, cause error) *Error {
	msg := code
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.RemediationHint = hint
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause so errors.Is/As can traverse the chain.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// As reports whether err is (or wraps) an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
