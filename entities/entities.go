// Package entities defines the core data model shared by every stage of the
// reproduction pipeline: papers, claims, reproduction plans, runs, run
// events, and the blob assets they own.
package entities

import "time"

// Stage identifies the pipeline stage a paper currently occupies.
type Stage string

const (
	StageIngest      Stage = "ingest"
	StageExtract     Stage = "extract"
	StagePlan        Stage = "plan"
	StageMaterialize Stage = "materialize"
	StageRun         Stage = "run"
	StageReport      Stage = "report"
)

// Status is the coarse lifecycle status of a paper, plan, or run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
)

// DatasetUpload is an optional blob attached to a paper at ingest time,
// carrying format and filename metadata for the tabular code generator and
// the dataset resolver's paper-upload override.
type DatasetUpload struct {
	// BlobPath is the object-store path of the uploaded dataset file.
	BlobPath string
	// Format is the lower-case file extension without a leading dot (csv, xls, xlsx).
	Format string
	// Filename is the original filename as provided by the caller.
	Filename string
}

// Paper is the root entity of a reproduction: a single ingested PDF.
type Paper struct {
	ID string

	Title      string
	SourceURL  string // optional
	BlobPath   string // papers/<env>/<yyyy>/<mm>/<dd>/<paper_id>.pdf
	Checksum   string // hex sha256, unique per blob
	IndexHandle string // provider-side searchable index handle, unique once assigned

	DatasetUpload *DatasetUpload // optional, set atomically with insert

	Stage  Stage
	Status Status

	ErrorCode    string
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Claim is a single quantitative claim extracted from a paper.
type Claim struct {
	ID      string
	PaperID string

	DatasetName string
	Split       string // optional
	MetricName  string
	MetricValue float64
	Units       string // "%", "s", or empty

	MethodSnippet   string // optional
	SourceCitation  string // required, non-empty
	Confidence      float64 // [0,1]

	// Optional dataset-metadata fields.
	DatasetFormat       string
	DatasetTargetColumn string
	DatasetPreprocessing string
	DatasetURL          string

	CreatedAt time.Time
}

// PlanVersion is the fixed schema version for reproduction plans.
const PlanVersion = "1.1"

// PlanDataset describes the dataset selected by a reproduction plan.
type PlanDataset struct {
	CanonicalName string
	SourceKind    string // sklearn | torchvision | huggingface | synthetic | tabular
	LoaderHints   map[string]string
	TrainSplit    string
	TestSplit     string
}

// PlanModel describes the model family selected by a reproduction plan.
type PlanModel struct {
	Name             string
	ArchitectureFamily string
	Framework        string
}

// PlanConfig carries the training configuration for a reproduction plan.
type PlanConfig struct {
	Seed         int
	BatchSize    int
	Epochs       int
	LearningRate float64
	Optimizer    string
	Dropout      *float64
	WeightDecay  *float64
}

// PlanMetrics declares the metrics a reproduction plan is scored against.
type PlanMetrics struct {
	Primary   string
	Secondary []string
	GoalValue float64
	Loss      string
}

// Justification pairs a verbatim quote from the paper with its citation.
type Justification struct {
	Quote    string
	Citation string
}

// PlanPolicy carries the execution policy for a reproduction plan.
type PlanPolicy struct {
	BudgetMinutes int
	LicenseTag    string
	CPUOnly       bool // always true
}

// PlanDocument is the strict, sanitized Plan v1.1 document (see
// planner.Sanitize for the bridge from the permissive LLM draft).
type PlanDocument struct {
	Version string // fixed "1.1"

	Dataset PlanDataset
	Model   PlanModel
	Config  PlanConfig
	Metrics PlanMetrics

	// Justifications maps a subject ("dataset", "model", "config", ...) to
	// its justification. At minimum "dataset", "model", and "config" must be
	// present with non-empty quote and citation after sanitization.
	Justifications map[string]Justification

	Policy PlanPolicy

	// VisualizationHints is optional; empty by default.
	VisualizationHints []string
}

// PlanSynthesisState tracks where a plan is in the two-stage synthesis
// pipeline.
type PlanSynthesisState string

const (
	PlanStateDraftReasoned PlanSynthesisState = "draft_reasoned"
	PlanStateDraftShaped   PlanSynthesisState = "draft_shaped"
	PlanStateSanitized     PlanSynthesisState = "sanitized"
	PlanStateValidated     PlanSynthesisState = "validated" // terminal success
	PlanStateRejected      PlanSynthesisState = "rejected"  // terminal failure
)

// PlanRecord is the persisted plan entity.
type PlanRecord struct {
	ID      string
	PaperID string

	Document PlanDocument

	// EnvFingerprint is set only after successful materialize.
	EnvFingerprint string

	State  PlanSynthesisState
	Status Status

	// ReasoningText is the verbose Stage-1 (Reasoner) text, nullable.
	ReasoningText string

	ErrorCode    string
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Run is a single notebook execution attempt against a materialized plan.
type Run struct {
	ID      string
	PlanID  string
	PaperID string

	Status Status
	Seed   int

	EnvFingerprint string

	ErrorCode    string
	ErrorMessage string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	DurationSec float64
}

// RunEvent is a single event emitted during a run; Timestamp orders a run's
// events when it is set.
type RunEvent struct {
	ID    string
	RunID string

	Timestamp int64 // monotonic, nanoseconds since run start
	Type      string
	Payload   map[string]any
}

// AssetKind enumerates the blob assets a plan or run can own.
type AssetKind string

const (
	AssetNotebook     AssetKind = "notebook"
	AssetRequirements AssetKind = "requirements"
	AssetMetrics      AssetKind = "metrics"
	AssetEventLog     AssetKind = "events"
	AssetLogText      AssetKind = "logs"
)

// Asset is a logical handle to a blob tied to a plan or run.
type Asset struct {
	ID    string
	Kind  AssetKind
	Path  string
	PlanID string
	RunID  string

	CreatedAt time.Time
}
