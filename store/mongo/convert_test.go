package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

func TestPaperDocRoundTripsAllFields(t *testing.T) {
	now := time.Now().UTC()
	p := &entities.Paper{
		ID: "p1", Title: "Attention Is All You Need", SourceURL: "https://example.com/a.pdf",
		BlobPath: "papers/prod/2026/07/p1.pdf", Checksum: "abc123", IndexHandle: "idx-1",
		DatasetUpload: &entities.DatasetUpload{BlobPath: "uploads/p1.csv", Format: "csv", Filename: "data.csv"},
		Stage:         entities.StageExtract, Status: entities.StatusCompleted,
		ErrorCode: "", ErrorMessage: "", CreatedAt: now, UpdatedAt: now,
	}
	got := toPaperDoc(p).toEntity()
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, p.Title, got.Title)
	require.Equal(t, p.Checksum, got.Checksum)
	require.Equal(t, p.IndexHandle, got.IndexHandle)
	require.NotNil(t, got.DatasetUpload)
	require.Equal(t, "data.csv", got.DatasetUpload.Filename)
	require.Equal(t, p.Stage, got.Stage)
	require.Equal(t, p.Status, got.Status)
}

func TestPaperDocHandlesNilDatasetUpload(t *testing.T) {
	p := &entities.Paper{ID: "p1"}
	got := toPaperDoc(p).toEntity()
	require.Nil(t, got.DatasetUpload)
}

func TestClaimDocRoundTripsAllFields(t *testing.T) {
	now := time.Now().UTC()
	c := &entities.Claim{
		ID: "c1", PaperID: "p1", DatasetName: "sst2", Split: "test",
		MetricName: "accuracy", MetricValue: 92.5, Units: "%",
		MethodSnippet: "linear probe", SourceCitation: "Table 2", Confidence: 0.9,
		DatasetFormat: "csv", DatasetTargetColumn: "label", DatasetPreprocessing: "lowercase",
		DatasetURL: "https://example.com/sst2", CreatedAt: now,
	}
	got := toClaimDoc(c).toEntity()
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, c.MetricName, got.MetricName)
	require.Equal(t, c.MetricValue, got.MetricValue)
	require.Equal(t, c.SourceCitation, got.SourceCitation)
	require.Equal(t, c.DatasetTargetColumn, got.DatasetTargetColumn)
	require.Equal(t, c.CreatedAt, got.CreatedAt)
}

func TestPlanDocRoundTripsNestedDocumentAndJustifications(t *testing.T) {
	dropout := 0.1
	rec := &entities.PlanRecord{
		ID: "plan1", PaperID: "p1",
		Document: entities.PlanDocument{
			Version: "1.1",
			Dataset: entities.PlanDataset{CanonicalName: "sst2", SourceKind: "huggingface", TrainSplit: "train"},
			Model:   entities.PlanModel{Name: "logreg", ArchitectureFamily: "linear", Framework: "sklearn"},
			Config:  entities.PlanConfig{Seed: 42, BatchSize: 32, Epochs: 10, LearningRate: 0.01, Dropout: &dropout},
			Metrics: entities.PlanMetrics{Primary: "accuracy", Secondary: []string{"f1"}, GoalValue: 0.9},
			Justifications: map[string]entities.Justification{
				"dataset": {Quote: "we use SST-2", Citation: "Section 4"},
			},
			Policy:             entities.PlanPolicy{BudgetMinutes: 10, CPUOnly: true},
			VisualizationHints: []string{"confusion_matrix"},
		},
		EnvFingerprint: "sha256:deadbeef",
		State:          entities.PlanStateValidated,
		Status:         entities.StatusCompleted,
		ReasoningText:  "because the paper reports this split",
	}
	got := toPlanDoc(rec).toEntity()
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, "sst2", got.Document.Dataset.CanonicalName)
	require.Equal(t, "logreg", got.Document.Model.Name)
	require.NotNil(t, got.Document.Config.Dropout)
	require.Equal(t, 0.1, *got.Document.Config.Dropout)
	require.Equal(t, []string{"f1"}, got.Document.Metrics.Secondary)
	require.Equal(t, "we use SST-2", got.Document.Justifications["dataset"].Quote)
	require.Equal(t, true, got.Document.Policy.CPUOnly)
	require.Equal(t, []string{"confusion_matrix"}, got.Document.VisualizationHints)
	require.Equal(t, rec.EnvFingerprint, got.EnvFingerprint)
	require.Equal(t, rec.State, got.State)
}

func TestRunDocRoundTripsAllFields(t *testing.T) {
	now := time.Now().UTC()
	r := &entities.Run{
		ID: "run1", PlanID: "plan1", PaperID: "p1", Status: entities.StatusSucceeded, Seed: 42,
		EnvFingerprint: "sha256:deadbeef", CreatedAt: now, StartedAt: now, CompletedAt: now.Add(time.Minute),
		DurationSec: 60,
	}
	got := toRunDoc(r).toEntity()
	require.Equal(t, r.ID, got.ID)
	require.Equal(t, r.PlanID, got.PlanID)
	require.Equal(t, r.Status, got.Status)
	require.Equal(t, r.Seed, got.Seed)
	require.Equal(t, r.DurationSec, got.DurationSec)
	require.Equal(t, r.CompletedAt, got.CompletedAt)
}
