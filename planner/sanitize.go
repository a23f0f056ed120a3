package planner

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/PIP-Team-3/paper2notebook/dataset"
	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
)

// numberFromInt builds a json.Number from an int literal; json.Number is
// just a string under the hood and has no built-in integer constructor.
func numberFromInt(v int) json.Number {
	return json.Number(strconv.Itoa(v))
}

// maxEpochs and maxBudgetMinutes are the sanitizer's hard caps.
const (
	maxEpochs        = 20
	maxBudgetMinutes = 20
	defaultSeed      = 42
	defaultEpochs    = 10
)

// SanitizeStep is one pure, idempotent transformation from draft to draft.
// The sanitizer is their ordered composition; see Sanitize.
type SanitizeStep func(d *PlanDraft, ctx SanitizeContext) error

// SanitizeContext carries the read-only inputs a sanitize step may need:
// the dataset registry/blocklist, the owning paper's upload (if any), and
// the caller's requested budget ceiling.
type SanitizeContext struct {
	Registry      *dataset.Registry
	BlockList     *dataset.BlockList
	Upload        *entities.DatasetUpload
	RequestBudget int // caller's budget_minutes request; 0 means "use the draft's value"

	// DatasetTargetColumn is the extractor-captured Claim.DatasetTargetColumn
	// for the claims being planned, if any claim carried one. Only consulted
	// by stepPaperUploadOverride to seed the tabular generator's explicit
	// target-column loader hint.
	DatasetTargetColumn string
}

// Steps returns the sanitizer's fixed, ordered step sequence. Each step is
// independently unit-testable and the full sequence is idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
func Steps() []SanitizeStep {
	return []SanitizeStep{
		stepStructuralCoercion,
		stepDatasetAliasResolution,
		stepPaperUploadOverride,
		stepCaps,
		stepJustificationStructuring,
		stepFinalValidation,
	}
}

// Sanitize runs every step in order, stopping at the first error. On success
// it returns the strict entities.PlanDocument built from the now-conformant
// draft.
func Sanitize(d *PlanDraft, ctx SanitizeContext) (*entities.PlanDocument, error) {
	for _, step := range Steps() {
		if err := step(d, ctx); err != nil {
			return nil, err
		}
	}
	return toPlanDocument(d), nil
}

// step 1: structural coercion. json.Unmarshal into PlanDraft already drops
// undefined keys and coerces string numerics via json.Number; this step only
// needs to inject defaults for fields json.Unmarshal leaves at their zero
// value.
func stepStructuralCoercion(d *PlanDraft, _ SanitizeContext) error {
	d.Version = "1.1"
	if d.Config == nil {
		d.Config = &ConfigDraft{}
	}
	if d.Config.Seed == "" {
		d.Config.Seed = numberFromInt(defaultSeed)
	}
	if d.Config.Epochs == "" {
		d.Config.Epochs = numberFromInt(defaultEpochs)
	}
	if d.Justify == nil {
		d.Justify = JustifyDraftMap{}
	}
	if d.VizHints == nil {
		d.VizHints = []string{}
	}
	return nil
}

// step 2: dataset alias resolution. Normalize the draft dataset name and
// resolve it through the registry/resolver; clear the dataset entry on a
// block or unknown/complex result so step 3 can apply the upload override.
func stepDatasetAliasResolution(d *PlanDraft, ctx SanitizeContext) error {
	if d.Dataset == nil || d.Dataset.CanonicalName == "" {
		d.Dataset = nil
		return nil
	}
	originalName := d.Dataset.CanonicalName
	result := dataset.Classify(d.Dataset.CanonicalName, ctx.Registry, ctx.BlockList, ctx.Upload)
	switch result.Classification {
	case dataset.ClassificationResolvedRegistry:
		d.Dataset.CanonicalName = result.Entry.CanonicalName
		d.Dataset.SourceKind = string(result.Entry.SourceKind)
		if d.Dataset.LoaderHints == nil {
			d.Dataset.LoaderHints = result.Entry.LoaderHints
		}
	case dataset.ClassificationBlocked:
		d.Dataset = nil
	default:
		// ClassificationResolvedUpload, ClassificationComplex, and
		// ClassificationUnknown are all handled by step 3's explicit upload
		// check rather than here, so the override logic lives in one place.
		// Keep the extractor's own name around so step 3 can use it as the
		// canonical name instead of the uploaded file's name.
		d.Dataset = nil
		d.ExtractorDatasetName = originalName
	}
	return nil
}

// step 3: paper-upload override. Fires only when the dataset entry was
// cleared by step 2 and the paper carries a dataset upload; the override
// must never fire when there is no upload. The canonical name prefers the
// name the extractor read off the paper (captured by step 2) over the
// uploaded file's own name, since the paper's own wording is what a reader
// of the generated notebook expects to see.
func stepPaperUploadOverride(d *PlanDraft, ctx SanitizeContext) error {
	if d.Dataset != nil {
		return nil // dataset already resolved via registry; no override needed
	}
	if ctx.Upload == nil || ctx.Upload.Filename == "" {
		return nil
	}
	hints := map[string]string{"format": ctx.Upload.Format}
	if ctx.DatasetTargetColumn != "" {
		hints["target_column"] = ctx.DatasetTargetColumn
	}
	d.Dataset = &DatasetDraft{
		CanonicalName: datasetNameFromUpload(d.ExtractorDatasetName, ctx.Upload),
		SourceKind:    "tabular",
		LoaderHints:   hints,
	}
	return nil
}

func datasetNameFromUpload(extractorName string, u *entities.DatasetUpload) string {
	if extractorName != "" {
		return extractorName
	}
	if u.Filename != "" {
		return u.Filename
	}
	return "uploaded_dataset"
}

// step 4: caps. Clamp epochs/budget to the sanitizer ceilings, then further
// clamp budget to the caller's request when that request is smaller.
func stepCaps(d *PlanDraft, ctx SanitizeContext) error {
	epochs, _ := d.Config.Epochs.Int64()
	if epochs <= 0 {
		epochs = defaultEpochs
	}
	if epochs > maxEpochs {
		epochs = maxEpochs
	}
	d.Config.Epochs = numberFromInt(int(epochs))

	if d.Policy == nil {
		d.Policy = &PolicyDraft{}
	}
	budget, _ := d.Policy.BudgetMinutes.Int64()
	if budget <= 0 {
		budget = maxBudgetMinutes
	}
	if budget > maxBudgetMinutes {
		budget = maxBudgetMinutes
	}
	if ctx.RequestBudget > 0 && int(budget) > ctx.RequestBudget {
		budget = int64(ctx.RequestBudget)
	}
	d.Policy.BudgetMinutes = numberFromInt(int(budget))
	cpuOnly := true
	d.Policy.CPUOnly = &cpuOnly
	return nil
}

// requiredJustifications lists the plan fields that must carry a non-empty
// {quote, citation} justification after sanitization.
var requiredJustifications = []string{"dataset", "model", "config"}

// step 5: justification structuring. Bare-string justifications were already
// normalized into {Quote, Citation: ""} by JustificationDraft.UnmarshalJSON;
// this step fills the missing citation and enforces presence for the
// required fields.
func stepJustificationStructuring(d *PlanDraft, _ SanitizeContext) error {
	for _, field := range requiredJustifications {
		j, ok := d.Justify[field]
		if !ok || j.Quote == "" {
			j.Quote = ""
		}
		if j.Citation == "" && j.Quote != "" {
			j.Citation = "Inferred"
		}
		d.Justify[field] = j
	}
	return nil
}

// step 6: final schema validation. Any still-missing required field or
// unresolved dataset fails with a typed, machine-readable code.
func stepFinalValidation(d *PlanDraft, _ SanitizeContext) error {
	if d.Dataset == nil || d.Dataset.CanonicalName == "" {
		return p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodePlanNoAllowedDatasets,
			"plan has no allowed dataset after sanitization")
	}
	if d.Model == nil || d.Model.Name == "" {
		return p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodePlanSchemaInvalid,
			"plan is missing model.name")
	}
	if d.Metrics == nil || d.Metrics.Primary == "" {
		return p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodePrimaryMetricAbsent,
			"plan is missing metrics.primary")
	}
	for _, field := range requiredJustifications {
		j := d.Justify[field]
		if j.Quote == "" || j.Citation == "" {
			return p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodeJustificationMissing,
				fmt.Sprintf("justification for %q is missing quote or citation", field))
		}
	}
	if d.Policy == nil || d.Policy.BudgetMinutes == "" {
		return p2nerrors.New(p2nerrors.KindSchema, p2nerrors.CodePlanSchemaInvalid,
			"plan is missing policy.budget_minutes")
	}
	return nil
}
