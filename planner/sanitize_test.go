package planner

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/dataset"
	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
)

func validDraft() *PlanDraft {
	return &PlanDraft{
		Dataset: &DatasetDraft{CanonicalName: "sst2"},
		Model:   &ModelDraft{Name: "logreg"},
		Config:  &ConfigDraft{},
		Metrics: &MetricsDraft{Primary: "accuracy"},
		Justify: JustifyDraftMap{
			"dataset": JustificationDraft{Quote: "we use SST-2", Citation: "p.3"},
			"model":   JustificationDraft{Quote: "logistic regression baseline", Citation: "p.4"},
			"config":  JustificationDraft{Quote: "batch size 32", Citation: "p.4"},
		},
	}
}

func testRegistry() *dataset.Registry {
	return dataset.New([]dataset.Entry{
		{CanonicalName: "sst2", SourceKind: dataset.SourceHuggingface, LoaderHints: map[string]string{"path": "sst2"}},
	})
}

func TestSanitizeProducesPlanDocumentOnValidDraft(t *testing.T) {
	doc, err := Sanitize(validDraft(), SanitizeContext{Registry: testRegistry()})
	require.NoError(t, err)
	require.Equal(t, "sst2", doc.Dataset.CanonicalName)
	require.Equal(t, string(dataset.SourceHuggingface), doc.Dataset.SourceKind)
	require.Equal(t, "logreg", doc.Model.Name)
	require.Equal(t, "accuracy", doc.Metrics.Primary)
	require.True(t, doc.Policy.CPUOnly)
	require.Equal(t, defaultSeed, doc.Config.Seed)
	require.Equal(t, defaultEpochs, doc.Config.Epochs)
}

func TestStepStructuralCoercionInjectsDefaults(t *testing.T) {
	d := &PlanDraft{}
	require.NoError(t, stepStructuralCoercion(d, SanitizeContext{}))
	require.Equal(t, "1.1", d.Version)
	require.NotNil(t, d.Config)
	require.Equal(t, numberFromInt(defaultSeed), d.Config.Seed)
	require.Equal(t, numberFromInt(defaultEpochs), d.Config.Epochs)
	require.NotNil(t, d.Justify)
	require.NotNil(t, d.VizHints)
}

func TestStepStructuralCoercionPreservesExplicitValues(t *testing.T) {
	d := &PlanDraft{Config: &ConfigDraft{Seed: numberFromInt(7), Epochs: numberFromInt(3)}}
	require.NoError(t, stepStructuralCoercion(d, SanitizeContext{}))
	require.Equal(t, numberFromInt(7), d.Config.Seed)
	require.Equal(t, numberFromInt(3), d.Config.Epochs)
}

func TestStepDatasetAliasResolutionResolvesAgainstRegistry(t *testing.T) {
	d := &PlanDraft{Dataset: &DatasetDraft{CanonicalName: "SST-2"}}
	err := stepDatasetAliasResolution(d, SanitizeContext{Registry: testRegistry()})
	require.NoError(t, err)
	require.Equal(t, "sst2", d.Dataset.CanonicalName)
	require.Equal(t, string(dataset.SourceHuggingface), d.Dataset.SourceKind)
}

func TestStepDatasetAliasResolutionClearsBlockedDataset(t *testing.T) {
	d := &PlanDraft{Dataset: &DatasetDraft{CanonicalName: "imagenet"}}
	bl := dataset.NewBlockList([]string{"imagenet"})
	err := stepDatasetAliasResolution(d, SanitizeContext{BlockList: bl})
	require.NoError(t, err)
	require.Nil(t, d.Dataset)
}

func TestStepDatasetAliasResolutionClearsUnknownDataset(t *testing.T) {
	d := &PlanDraft{Dataset: &DatasetDraft{CanonicalName: "mystery-set"}}
	err := stepDatasetAliasResolution(d, SanitizeContext{})
	require.NoError(t, err)
	require.Nil(t, d.Dataset)
}

func TestStepDatasetAliasResolutionLeavesNilDatasetAlone(t *testing.T) {
	d := &PlanDraft{}
	require.NoError(t, stepDatasetAliasResolution(d, SanitizeContext{}))
	require.Nil(t, d.Dataset)
}

func TestStepPaperUploadOverrideFiresOnlyWhenDatasetClearedAndUploadPresent(t *testing.T) {
	d := &PlanDraft{}
	upload := &entities.DatasetUpload{Filename: "custom.csv", Format: "csv"}
	require.NoError(t, stepPaperUploadOverride(d, SanitizeContext{Upload: upload}))
	require.NotNil(t, d.Dataset)
	require.Equal(t, "custom.csv", d.Dataset.CanonicalName)
	require.Equal(t, "tabular", d.Dataset.SourceKind)
	require.Equal(t, "csv", d.Dataset.LoaderHints["format"])
}

func TestStepPaperUploadOverrideSkipsWhenDatasetAlreadyResolved(t *testing.T) {
	d := &PlanDraft{Dataset: &DatasetDraft{CanonicalName: "sst2"}}
	upload := &entities.DatasetUpload{Filename: "custom.csv"}
	require.NoError(t, stepPaperUploadOverride(d, SanitizeContext{Upload: upload}))
	require.Equal(t, "sst2", d.Dataset.CanonicalName)
}

// Sanitize's steps are documented as idempotent: re-running the full
// sequence on an already-sanitized draft must not change the resulting
// document. cmp.Diff gives a readable field-by-field diff on failure,
// unlike testify's reflect.DeepEqual-based assert.Equal output on a
// nested struct this size.
func TestSanitizeIsIdempotentOnAnAlreadySanitizedDraft(t *testing.T) {
	ctx := SanitizeContext{Registry: testRegistry()}
	d := validDraft()
	first, err := Sanitize(d, ctx)
	require.NoError(t, err)

	second, err := Sanitize(d, ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("sanitize was not idempotent (-first +second):\n%s", diff)
	}
}

func TestStepPaperUploadOverrideSkipsWhenNoUpload(t *testing.T) {
	d := &PlanDraft{}
	require.NoError(t, stepPaperUploadOverride(d, SanitizeContext{}))
	require.Nil(t, d.Dataset)
}

func TestStepPaperUploadOverrideSkipsWhenUploadFilenameEmpty(t *testing.T) {
	d := &PlanDraft{}
	require.NoError(t, stepPaperUploadOverride(d, SanitizeContext{Upload: &entities.DatasetUpload{}}))
	require.Nil(t, d.Dataset)
}

func TestStepPaperUploadOverridePrefersExtractorNameOverUploadFilename(t *testing.T) {
	d := &PlanDraft{ExtractorDatasetName: "Penalty Shoot-out Dataset"}
	upload := &entities.DatasetUpload{Filename: "AER20081092_Data.xlsx", Format: "xlsx"}
	require.NoError(t, stepPaperUploadOverride(d, SanitizeContext{Upload: upload}))
	require.Equal(t, "Penalty Shoot-out Dataset", d.Dataset.CanonicalName)
}

func TestStepPaperUploadOverrideSeedsExplicitTargetColumnHint(t *testing.T) {
	d := &PlanDraft{}
	upload := &entities.DatasetUpload{Filename: "custom.csv", Format: "csv"}
	require.NoError(t, stepPaperUploadOverride(d, SanitizeContext{Upload: upload, DatasetTargetColumn: "won_penalty"}))
	require.Equal(t, "won_penalty", d.Dataset.LoaderHints["target_column"])
}

func TestStepDatasetAliasResolutionCapturesExtractorNameOnUnknownDataset(t *testing.T) {
	d := &PlanDraft{Dataset: &DatasetDraft{CanonicalName: "Penalty Shoot-out Dataset"}}
	require.NoError(t, stepDatasetAliasResolution(d, SanitizeContext{}))
	require.Nil(t, d.Dataset)
	require.Equal(t, "Penalty Shoot-out Dataset", d.ExtractorDatasetName)
}

func TestStepCapsClampsEpochsToMax(t *testing.T) {
	d := &PlanDraft{Config: &ConfigDraft{Epochs: numberFromInt(999)}}
	require.NoError(t, stepCaps(d, SanitizeContext{}))
	got, _ := d.Config.Epochs.Int64()
	require.Equal(t, int64(maxEpochs), got)
}

func TestStepCapsDefaultsEpochsWhenZeroOrNegative(t *testing.T) {
	d := &PlanDraft{Config: &ConfigDraft{Epochs: numberFromInt(0)}}
	require.NoError(t, stepCaps(d, SanitizeContext{}))
	got, _ := d.Config.Epochs.Int64()
	require.Equal(t, int64(defaultEpochs), got)
}

func TestStepCapsClampsBudgetToMax(t *testing.T) {
	d := &PlanDraft{Config: &ConfigDraft{Epochs: numberFromInt(1)}, Policy: &PolicyDraft{BudgetMinutes: numberFromInt(999)}}
	require.NoError(t, stepCaps(d, SanitizeContext{}))
	got, _ := d.Policy.BudgetMinutes.Int64()
	require.Equal(t, int64(maxBudgetMinutes), got)
	require.True(t, *d.Policy.CPUOnly)
}

func TestStepCapsFurtherClampsToRequestBudgetWhenSmaller(t *testing.T) {
	d := &PlanDraft{Config: &ConfigDraft{Epochs: numberFromInt(1)}, Policy: &PolicyDraft{BudgetMinutes: numberFromInt(15)}}
	require.NoError(t, stepCaps(d, SanitizeContext{RequestBudget: 5}))
	got, _ := d.Policy.BudgetMinutes.Int64()
	require.Equal(t, int64(5), got)
}

func TestStepCapsIgnoresRequestBudgetWhenLarger(t *testing.T) {
	d := &PlanDraft{Config: &ConfigDraft{Epochs: numberFromInt(1)}, Policy: &PolicyDraft{BudgetMinutes: numberFromInt(5)}}
	require.NoError(t, stepCaps(d, SanitizeContext{RequestBudget: 15}))
	got, _ := d.Policy.BudgetMinutes.Int64()
	require.Equal(t, int64(5), got)
}

func TestStepCapsDefaultsBudgetWhenNilPolicy(t *testing.T) {
	d := &PlanDraft{Config: &ConfigDraft{Epochs: numberFromInt(1)}}
	require.NoError(t, stepCaps(d, SanitizeContext{}))
	require.NotNil(t, d.Policy)
	got, _ := d.Policy.BudgetMinutes.Int64()
	require.Equal(t, int64(maxBudgetMinutes), got)
}

func TestStepJustificationStructuringFillsCitationWhenQuotePresent(t *testing.T) {
	d := &PlanDraft{Justify: JustifyDraftMap{
		"dataset": JustificationDraft{Quote: "we use SST-2"},
		"model":   JustificationDraft{Quote: "logreg", Citation: "p.4"},
		"config":  JustificationDraft{},
	}}
	require.NoError(t, stepJustificationStructuring(d, SanitizeContext{}))
	require.Equal(t, "Inferred", d.Justify["dataset"].Citation)
	require.Equal(t, "p.4", d.Justify["model"].Citation)
	require.Equal(t, "", d.Justify["config"].Citation)
}

func TestStepFinalValidationFailsOnMissingDataset(t *testing.T) {
	d := validDraft()
	d.Dataset = nil
	err := stepFinalValidation(d, SanitizeContext{})
	pe, ok := p2nerrors.As(err)
	require.True(t, ok)
	require.Equal(t, p2nerrors.CodePlanNoAllowedDatasets, pe.Code)
}

func TestStepFinalValidationFailsOnMissingModel(t *testing.T) {
	d := validDraft()
	d.Model = nil
	err := stepFinalValidation(d, SanitizeContext{})
	pe, ok := p2nerrors.As(err)
	require.True(t, ok)
	require.Equal(t, p2nerrors.CodePlanSchemaInvalid, pe.Code)
}

func TestStepFinalValidationFailsOnMissingPrimaryMetric(t *testing.T) {
	d := validDraft()
	d.Metrics = nil
	err := stepFinalValidation(d, SanitizeContext{})
	pe, ok := p2nerrors.As(err)
	require.True(t, ok)
	require.Equal(t, p2nerrors.CodePrimaryMetricAbsent, pe.Code)
}

func TestStepFinalValidationFailsOnMissingJustification(t *testing.T) {
	d := validDraft()
	delete(d.Justify, "config")
	err := stepFinalValidation(d, SanitizeContext{})
	pe, ok := p2nerrors.As(err)
	require.True(t, ok)
	require.Equal(t, p2nerrors.CodeJustificationMissing, pe.Code)
}

func TestStepFinalValidationFailsOnMissingBudget(t *testing.T) {
	d := validDraft()
	d.Policy = nil
	err := stepFinalValidation(d, SanitizeContext{})
	pe, ok := p2nerrors.As(err)
	require.True(t, ok)
	require.Equal(t, p2nerrors.CodePlanSchemaInvalid, pe.Code)
}

func TestStepFinalValidationPassesOnCompleteDraft(t *testing.T) {
	d := validDraft()
	d.Policy = &PolicyDraft{BudgetMinutes: numberFromInt(10)}
	require.NoError(t, stepFinalValidation(d, SanitizeContext{}))
}

func TestParseDraftDecodesBareStringJustifications(t *testing.T) {
	raw := json.RawMessage(`{"justifications":{"dataset":"we use SST-2"}}`)
	d, err := ParseDraft(raw)
	require.NoError(t, err)
	require.Equal(t, "we use SST-2", d.Justify["dataset"].Quote)
	require.Equal(t, "", d.Justify["dataset"].Citation)
}

func TestParseDraftDecodesObjectJustifications(t *testing.T) {
	raw := json.RawMessage(`{"justifications":{"dataset":{"quote":"q","citation":"c"}}}`)
	d, err := ParseDraft(raw)
	require.NoError(t, err)
	require.Equal(t, "q", d.Justify["dataset"].Quote)
	require.Equal(t, "c", d.Justify["dataset"].Citation)
}

func TestParseDraftIgnoresUnknownKeys(t *testing.T) {
	raw := json.RawMessage(`{"unrelated_field": 42, "version": "whatever"}`)
	d, err := ParseDraft(raw)
	require.NoError(t, err)
	require.Equal(t, "whatever", d.Version)
}
