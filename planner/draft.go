// Package planner implements the two-stage LLM plan synthesis pipeline
// (Reasoner, then Shaper) and the deterministic sanitizer that turns a
// permissive draft into a schema-valid Plan v1.1 document. The sanitizer
// never calls a model: it is a fixed sequence of pure, idempotent functions
// over PlanDraft.
package planner

import "encoding/json"

// PlanDraft is the permissive shape plan synthesis works with before
// sanitization: numeric fields may arrive as JSON strings, justifications may
// be bare strings instead of {quote, citation} objects, and any field may be
// absent. Modeling the draft as its own loosely-typed union (rather than
// reusing entities.PlanDocument with pointer fields) keeps the strict final
// type free of "maybe a string, maybe a number" escape hatches.
type PlanDraft struct {
	Version  string          `json:"version"`
	Dataset  *DatasetDraft   `json:"dataset"`
	Model    *ModelDraft     `json:"model"`
	Config   *ConfigDraft    `json:"config"`
	Metrics  *MetricsDraft   `json:"metrics"`
	Justify  JustifyDraftMap `json:"justifications"`
	Policy   *PolicyDraft    `json:"policy"`
	VizHints []string        `json:"visualization_hints"`

	// Warnings holds non-fatal notes carried on the draft for the plan
	// record. None of the steps in Steps appends to it, so a volunteered
	// dataset that no claim references is accepted without a warning. Not
	// part of the Plan v1.1 schema.
	Warnings []string `json:"-"`

	// ExtractorDatasetName is captured by stepDatasetAliasResolution before it
	// clears an unresolved Dataset block, so a later paper-upload override can
	// still use the name the extractor read off the paper instead of falling
	// back to the uploaded file's name. Not part of the Plan v1.1 schema.
	ExtractorDatasetName string `json:"-"`
}

// DatasetDraft is the permissive dataset block.
type DatasetDraft struct {
	CanonicalName string            `json:"canonical_name"`
	SourceKind    string            `json:"source_kind"`
	LoaderHints   map[string]string `json:"loader_hints"`
	TrainSplit    string            `json:"train_split"`
	TestSplit     string            `json:"test_split"`
}

// ModelDraft is the permissive model block.
type ModelDraft struct {
	Name             string `json:"name"`
	ArchitectureFam  string `json:"architecture_family"`
	FrameworkTag     string `json:"framework_tag"`
}

// ConfigDraft is the permissive config block; numeric fields are json.Number
// so "10" and 10 both decode without a custom UnmarshalJSON.
type ConfigDraft struct {
	Seed         json.Number `json:"seed"`
	BatchSize    json.Number `json:"batch_size"`
	Epochs       json.Number `json:"epochs"`
	LearningRate json.Number `json:"learning_rate"`
	Optimizer    string      `json:"optimizer"`
	Dropout      json.Number `json:"dropout"`
	WeightDecay  json.Number `json:"weight_decay"`
}

// MetricsDraft is the permissive metrics block.
type MetricsDraft struct {
	Primary   string      `json:"primary"`
	Secondary []string    `json:"secondary"`
	Goal      json.Number `json:"goal"`
	Loss      string      `json:"loss"`
}

// JustificationDraft accepts either a bare string or a {quote, citation} pair.
// UnmarshalJSON handles both shapes so Stage-2 output that under-specifies
// justifications still decodes.
type JustificationDraft struct {
	Quote    string
	Citation string
}

func (j *JustificationDraft) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		j.Quote = asString
		j.Citation = ""
		return nil
	}
	var asObject struct {
		Quote    string `json:"quote"`
		Citation string `json:"citation"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return err
	}
	j.Quote = asObject.Quote
	j.Citation = asObject.Citation
	return nil
}

// JustifyDraftMap maps a plan field ("dataset", "model", "config", ...) to
// its justification.
type JustifyDraftMap map[string]JustificationDraft

// PolicyDraft is the permissive policy block.
type PolicyDraft struct {
	BudgetMinutes json.Number `json:"budget_minutes"`
	LicenseTag    string      `json:"license_tag"`
	CPUOnly       *bool       `json:"cpu_only"`
}

// ParseDraft decodes raw Shaper (or rescued) output into a PlanDraft,
// dropping unknown keys implicitly (encoding/json already ignores fields
// absent from the struct, satisfying sanitizer step 1's "drop keys not
// defined in the schema").
func ParseDraft(raw json.RawMessage) (*PlanDraft, error) {
	var d PlanDraft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
