// Package pipeline wires every stage (Ingest, Extract, Plan, Materialize,
// Run, Report) into a six-stage state machine, enforcing each stage's
// prerequisite checks (there is no separate transition table): a single
// Service struct holding its
// dependencies, one method per public operation, no framework runtime in
// between.
package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PIP-Team-3/paper2notebook/agentrt"
	"github.com/PIP-Team-3/paper2notebook/blob"
	"github.com/PIP-Team-3/paper2notebook/codegen"
	"github.com/PIP-Team-3/paper2notebook/dataset"
	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/extract"
	"github.com/PIP-Team-3/paper2notebook/llmmodel"
	"github.com/PIP-Team-3/paper2notebook/notebook"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
	"github.com/PIP-Team-3/paper2notebook/planner"
	"github.com/PIP-Team-3/paper2notebook/report"
	"github.com/PIP-Team-3/paper2notebook/runstream"
	"github.com/PIP-Team-3/paper2notebook/sandbox"
	"github.com/PIP-Team-3/paper2notebook/store"
	"github.com/PIP-Team-3/paper2notebook/telemetry"
)

const (
	maxPDFBytes  = 15 * 1024 * 1024
	fetchTimeout = 30 * time.Second
)

// Service aggregates every dependency the pipeline stages need.
type Service struct {
	Store    store.Store
	Blob     blob.Store
	Broker   *runstream.Broker
	Registry *dataset.Registry
	Blocked  *dataset.BlockList

	PlannerClients planner.Clients
	ExtractClient  llmmodel.Client
	ExtractModel   string
	MinConfidence  float64

	Env              string
	PythonExecutable string

	Logger  telemetry.Logger
	Tracer  telemetry.Tracer
	Metrics telemetry.Metrics

	httpClient *http.Client
}

// New constructs a Service, defaulting the internal HTTP client used for
// URL-based ingest and any telemetry collaborator left unset to its no-op
// implementation.
func New(svc Service) *Service {
	svc.httpClient = &http.Client{Timeout: fetchTimeout}
	if svc.Logger == nil {
		svc.Logger = telemetry.NewNoopLogger()
	}
	if svc.Tracer == nil {
		svc.Tracer = telemetry.NewNoopTracer()
	}
	if svc.Metrics == nil {
		svc.Metrics = telemetry.NewNoopMetrics()
	}
	return &svc
}

// startStage opens a tracing span named "pipeline.<stage>" and logs entry,
// matching every public Service method's telemetry boilerplate.
func (s *Service) startStage(ctx context.Context, stage string, keyvals ...any) (context.Context, telemetry.Span) {
	ctx, span := s.Tracer.Start(ctx, "pipeline."+stage)
	s.Logger.Info(ctx, "stage started", append([]any{"stage", stage}, keyvals...)...)
	return ctx, span
}

// endStage logs completion or failure of a stage and records its duration.
func (s *Service) endStage(ctx context.Context, stage string, start time.Time, err error) {
	s.Metrics.RecordTimer("pipeline.stage_duration", time.Since(start), "stage", stage)
	if err != nil {
		s.Logger.Error(ctx, "stage failed", "stage", stage, "error", err.Error())
		return
	}
	s.Logger.Info(ctx, "stage completed", "stage", stage)
}

// Ingest accepts either raw PDF bytes or a URL to fetch, enforces the MIME
// and size constraints, and dedupes by checksum.
func (s *Service) Ingest(ctx context.Context, pdfBytes []byte, sourceURL, title string, upload *entities.DatasetUpload) (paper *entities.Paper, err error) {
	start := time.Now()
	ctx, span := s.startStage(ctx, "ingest", "title", title)
	defer span.End()
	defer func() { s.endStage(ctx, "ingest", start, err) }()

	if pdfBytes == nil && sourceURL != "" {
		fetched, err := s.fetchURL(ctx, sourceURL)
		if err != nil {
			return nil, err
		}
		pdfBytes = fetched
	}
	if len(pdfBytes) == 0 {
		return nil, p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodeFetchFailed, "no PDF bytes available")
	}
	if len(pdfBytes) > maxPDFBytes {
		return nil, p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodeOversizePayload, "PDF exceeds 15 MiB")
	}
	if !looksLikePDF(pdfBytes) {
		return nil, p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodeUnsupportedMediaType, "payload is not a PDF")
	}

	sum := sha256.Sum256(pdfBytes)
	checksum := hex.EncodeToString(sum[:])

	if existing, err := s.Store.Papers().LookupByChecksum(ctx, checksum); err == nil {
		return existing, nil
	} else if err != store.ErrNotFound {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	path := blob.PaperPDFPath(s.Env, id, now)
	if err := s.Blob.Put(ctx, path, pdfBytes, "application/pdf"); err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeBlobStoreFailure, err)
	}

	indexHandle, err := s.createSearchIndex(ctx, path)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeIndexCreationFailed, err)
	}

	paper = &entities.Paper{
		ID:            id,
		Title:         title,
		SourceURL:     sourceURL,
		BlobPath:      path,
		Checksum:      checksum,
		IndexHandle:   indexHandle,
		DatasetUpload: upload,
		Stage:         entities.StageIngest,
		Status:        entities.StatusCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Papers().Insert(ctx, paper); err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}
	return paper, nil
}

func looksLikePDF(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], []byte("%PDF"))
}

func (s *Service) fetchURL(ctx context.Context, url string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodeFetchFailed, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, p2nerrors.Newf(p2nerrors.KindExternal, p2nerrors.CodeFetchFailed, "fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeFetchFailed, err)
	}
	return data, nil
}

// createSearchIndex is a placeholder provider-side index creation call. The
// real implementation would call the LLM provider's file-search index API
// (e.g. Anthropic files or OpenAI vector stores); wiring that concrete
// dependency is out of scope here, so this returns a deterministic handle
// derived from the blob path.
func (s *Service) createSearchIndex(ctx context.Context, blobPath string) (string, error) {
	return "index_" + strings.ReplaceAll(blobPath, "/", "_"), nil
}

// Extract runs the Extractor agent against paperID's indexed text and
// replaces its claim set.
func (s *Service) Extract(ctx context.Context, paperID string, sink extract.EventSink) (claims []*entities.Claim, err error) {
	start := time.Now()
	ctx, span := s.startStage(ctx, "extract", "paper_id", paperID)
	defer span.End()
	defer func() { s.endStage(ctx, "extract", start, err) }()

	paper, err := s.Store.Papers().GetByID(ctx, paperID)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePaperNotFound, err)
	}
	if paper.IndexHandle == "" {
		return nil, p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodePaperNotReady, "paper has no searchable index yet")
	}

	extracted, _, err := extract.Run(ctx, extract.Request{
		Client:        s.ExtractClient,
		Model:         s.ExtractModel,
		PaperID:       paperID,
		PaperTitle:    paper.Title,
		IndexHandle:   paper.IndexHandle,
		MinConfidence: s.MinConfidence,
		Sink:          sink,
	})
	if err != nil {
		_ = s.Store.Papers().UpdateStageStatus(ctx, paperID, entities.StageExtract, entities.StatusFailed, errCode(err), err.Error())
		return nil, err
	}
	claims = extracted

	if sink != nil {
		sink("persist_start", paperID)
	}
	if err := s.Store.Claims().Replace(ctx, paperID, claims); err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}
	if sink != nil {
		sink("persist_done", paperID)
	}
	_ = s.Store.Papers().UpdateStageStatus(ctx, paperID, entities.StageExtract, entities.StatusCompleted, "", "")
	s.Logger.Info(ctx, "claims extracted", "paper_id", paperID, "claim_count", len(claims))
	return claims, nil
}

// Plan synthesizes a reproduction plan for the given claims and budget.
func (s *Service) Plan(ctx context.Context, paperID string, claimIDs []string, budgetMinutes int) (planRecord *entities.PlanRecord, err error) {
	start := time.Now()
	ctx, span := s.startStage(ctx, "plan", "paper_id", paperID, "budget_minutes", budgetMinutes)
	defer span.End()
	defer func() { s.endStage(ctx, "plan", start, err) }()

	paper, err := s.Store.Papers().GetByID(ctx, paperID)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePaperNotFound, err)
	}
	claims, err := s.Store.Claims().GetByIDs(ctx, claimIDs)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}

	summaries := make([]string, 0, len(claims))
	for _, c := range claims {
		summaries = append(summaries, fmt.Sprintf("%s on %s: %.4g%s (%s)", c.MetricName, c.DatasetName, c.MetricValue, c.Units, c.SourceCitation))
	}

	bus := agentrt.NewBus()
	runID := uuid.NewString()
	result, err := planner.Synthesize(ctx, s.PlannerClients, planner.Input{
		PaperTitle:          paper.Title,
		ClaimSummaries:      summaries,
		RequestBudget:       budgetMinutes,
		Registry:            s.Registry,
		BlockList:           s.Blocked,
		Upload:              paper.DatasetUpload,
		Bus:                 bus,
		RunID:               runID,
		DatasetTargetColumn: datasetTargetColumn(claims),
	})
	record := &entities.PlanRecord{
		ID:        uuid.NewString(),
		PaperID:   paperID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err != nil {
		record.State = entities.PlanStateRejected
		record.Status = entities.StatusFailed
		if pe, ok := p2nerrors.As(err); ok {
			record.ErrorCode = pe.Code
			record.ErrorMessage = pe.Message
		} else {
			record.ErrorMessage = err.Error()
		}
		_ = s.Store.Plans().Insert(ctx, record)
		s.Metrics.IncCounter("pipeline.plan.rejected", 1)
		return record, err
	}

	record.Document = *result.Plan
	record.State = entities.PlanStateValidated
	record.Status = entities.StatusCompleted
	record.ReasoningText = result.Stage1Transcript
	if err := s.Store.Plans().Insert(ctx, record); err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}
	s.Logger.Info(ctx, "plan validated", "paper_id", paperID, "plan_id", record.ID)
	return record, nil
}

// Materialize builds and validates a notebook for plan, pins its
// environment, and persists both.
func (s *Service) Materialize(ctx context.Context, planID string) (notebookPath string, fingerprint string, err error) {
	start := time.Now()
	ctx, span := s.startStage(ctx, "materialize", "plan_id", planID)
	defer span.End()
	defer func() { s.endStage(ctx, "materialize", start, err) }()

	plan, err := s.Store.Plans().GetByID(ctx, planID)
	if err != nil {
		return "", "", p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePlanNotFound, err)
	}
	paper, err := s.Store.Papers().GetByID(ctx, plan.PaperID)
	if err != nil {
		return "", "", p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePaperNotFound, err)
	}

	datasetGen := codegen.SelectDataset(&plan.Document, s.Registry, paper.DatasetUpload)
	modelGen := codegen.SelectModel(&plan.Document)

	doc := notebook.Build(&plan.Document, datasetGen, modelGen, plan.Document.Config.Seed)
	if errs := notebook.Validate(doc); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return "", "", p2nerrors.Newf(p2nerrors.KindValidation, p2nerrors.CodeNotebookValidationFail, "notebook validation failed: %s", strings.Join(msgs, "; "))
	}

	ipynb, err := doc.ToIpynb()
	if err != nil {
		return "", "", p2nerrors.Wrap(p2nerrors.KindExecution, p2nerrors.CodeNotebookSyntaxError, err)
	}

	requirements := notebook.Requirements(&plan.Document, datasetGen, modelGen)
	fingerprint = notebook.Fingerprint(requirements)

	notebookPath = blob.NotebookPath(planID)
	if err := s.Blob.Put(ctx, notebookPath, ipynb, "application/x-ipynb+json"); err != nil {
		return "", "", p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeBlobStoreFailure, err)
	}
	reqPath := blob.RequirementsPath(planID)
	if err := s.Blob.Put(ctx, reqPath, []byte(strings.Join(requirements, "\n")+"\n"), "text/plain"); err != nil {
		return "", "", p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeBlobStoreFailure, err)
	}

	if err := s.Store.Plans().UpdateEnvFingerprint(ctx, planID, fingerprint); err != nil {
		return "", "", p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}
	for _, a := range []struct {
		kind entities.AssetKind
		path string
	}{
		{entities.AssetNotebook, notebookPath},
		{entities.AssetRequirements, reqPath},
	} {
		_ = s.Store.Assets().Insert(ctx, &entities.Asset{ID: uuid.NewString(), Kind: a.kind, Path: a.path, PlanID: planID, CreatedAt: time.Now().UTC()})
	}

	s.Logger.Info(ctx, "notebook materialized", "plan_id", planID, "env_fingerprint", fingerprint)
	return notebookPath, fingerprint, nil
}

// Run executes the materialized notebook for plan in the sandbox, streaming
// events to the broker, and persists the run's artifacts.
func (s *Service) Run(ctx context.Context, planID string) (runID string, err error) {
	start := time.Now()
	ctx, span := s.startStage(ctx, "run", "plan_id", planID)
	defer span.End()
	defer func() { s.endStage(ctx, "run", start, err) }()

	plan, err := s.Store.Plans().GetByID(ctx, planID)
	if err != nil {
		return "", p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePlanNotFound, err)
	}
	if plan.EnvFingerprint == "" {
		return "", p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodePlanNotMaterialized, "plan has not been materialized")
	}
	paper, err := s.Store.Papers().GetByID(ctx, plan.PaperID)
	if err != nil {
		return "", p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePaperNotFound, err)
	}

	notebookBytes, err := s.Blob.Get(ctx, blob.NotebookPath(planID))
	if err != nil {
		return "", p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeBlobStoreFailure, err)
	}

	runID = uuid.NewString()
	seed := plan.Document.Config.Seed
	if seed == 0 {
		seed = 42
	}
	run := &entities.Run{
		ID:             runID,
		PlanID:         planID,
		PaperID:        plan.PaperID,
		Status:         entities.StatusRunning,
		Seed:           seed,
		EnvFingerprint: plan.EnvFingerprint,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Store.Runs().Insert(ctx, run); err != nil {
		return "", p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}
	_ = s.Store.Runs().MarkStarted(ctx, runID)

	workDir, err := os.MkdirTemp("", "p2n-run-*")
	if err != nil {
		return "", p2nerrors.Wrap(p2nerrors.KindExecution, p2nerrors.CodeCellFailed, err)
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, "notebook.ipynb"), notebookBytes, 0o644); err != nil {
		return "", p2nerrors.Wrap(p2nerrors.KindExecution, p2nerrors.CodeCellFailed, err)
	}

	var uploadPath string
	if paper.DatasetUpload != nil {
		data, err := s.Blob.Get(ctx, paper.DatasetUpload.BlobPath)
		if err == nil {
			uploadPath = filepath.Join(workDir, "upload."+paper.DatasetUpload.Format)
			_ = os.WriteFile(uploadPath, data, 0o644)
		}
	}

	result, err := sandbox.Execute(ctx, s.Broker, runID, sandbox.Options{
		WorkDir:           workDir,
		NotebookPath:      filepath.Join(workDir, "notebook.ipynb"),
		BudgetMinutes:     plan.Document.Policy.BudgetMinutes,
		PythonExecutable:  s.PythonExecutable,
		DatasetUploadPath: uploadPath,
	})
	if err != nil {
		_ = s.Store.Runs().MarkCompleted(ctx, runID, entities.StatusFailed, 0, p2nerrors.CodeCellFailed, err.Error())
		return runID, err
	}

	if len(result.LogsText) > 0 {
		_ = s.Blob.Put(ctx, blob.LogsPath(runID), result.LogsText, "text/plain")
	}
	if len(result.EventsJSONL) > 0 {
		_ = s.Blob.Put(ctx, blob.EventsPath(runID), result.EventsJSONL, "application/x-ndjson")
	}
	if len(result.MetricsJSON) > 0 {
		_ = s.Blob.Put(ctx, blob.MetricsPath(runID), result.MetricsJSON, "application/json")
	}

	_ = s.Store.Runs().MarkCompleted(ctx, runID, result.Status, result.DurationSec, result.ErrorCode, result.ErrorMsg)
	s.Metrics.RecordTimer("pipeline.run.execution_duration", time.Duration(result.DurationSec*float64(time.Second)), "status", string(result.Status))
	s.Logger.Info(ctx, "run completed", "run_id", runID, "plan_id", planID, "status", result.Status)
	return runID, nil
}

// Report computes the claimed-vs-observed gap for paperID's latest
// succeeded run.
func (s *Service) Report(ctx context.Context, paperID string) (gap *report.Gap, err error) {
	start := time.Now()
	ctx, span := s.startStage(ctx, "report", "paper_id", paperID)
	defer span.End()
	defer func() { s.endStage(ctx, "report", start, err) }()

	paper, err := s.Store.Papers().GetByID(ctx, paperID)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePaperNotFound, err)
	}
	plans, err := s.Store.Plans().ListByPaper(ctx, paperID)
	if err != nil || len(plans) == 0 {
		return nil, p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodePlanNotFound, "no plan exists for this paper")
	}
	plan := latestPlan(plans)

	run, err := s.Store.Runs().LatestSucceededByPaper(ctx, paperID)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindInput, p2nerrors.CodePlanNotFound, err)
	}

	metricsBytes, err := s.Blob.Get(ctx, blob.MetricsPath(run.ID))
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeBlobStoreFailure, err)
	}
	metrics, err := parseMetrics(metricsBytes)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExecution, p2nerrors.CodeMetricsMissing, err)
	}

	claims, err := s.Store.Claims().ListByPaper(ctx, paperID)
	if err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExternal, p2nerrors.CodeMetadataStoreFailure, err)
	}

	return report.Compute(ctx, s.Store, metrics, paper, plan, run, claims)
}

// datasetTargetColumn returns the first claim-level target column carried
// from extraction, so Plan can hand it to the sanitizer's upload-override
// step without the Reasoner/Shaper ever having to round-trip it.
func datasetTargetColumn(claims []*entities.Claim) string {
	for _, c := range claims {
		if c.DatasetTargetColumn != "" {
			return c.DatasetTargetColumn
		}
	}
	return ""
}

func latestPlan(plans []*entities.PlanRecord) *entities.PlanRecord {
	latest := plans[0]
	for _, p := range plans[1:] {
		if p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	return latest
}

func parseMetrics(data []byte) (map[string]float64, error) {
	var out map[string]float64
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func errCode(err error) string {
	if pe, ok := p2nerrors.As(err); ok {
		return pe.Code
	}
	return ""
}
