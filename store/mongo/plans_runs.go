package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/store"
)

// --- plans ---

type plansStore struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

type justificationDoc struct {
	Quote    string `bson:"quote"`
	Citation string `bson:"citation"`
}

type planDocumentDoc struct {
	Version        string                      `bson:"version"`
	Dataset        datasetDoc                  `bson:"dataset"`
	Model          modelDoc                    `bson:"model"`
	Config         configDoc                   `bson:"config"`
	Metrics        metricsDoc                  `bson:"metrics"`
	Justifications map[string]justificationDoc `bson:"justifications"`
	Policy         policyDoc                   `bson:"policy"`
	Visualization  []string                    `bson:"visualization_hints,omitempty"`
}

type datasetDoc struct {
	CanonicalName string            `bson:"canonical_name"`
	SourceKind    string            `bson:"source_kind"`
	LoaderHints   map[string]string `bson:"loader_hints,omitempty"`
	TrainSplit    string            `bson:"train_split,omitempty"`
	TestSplit     string            `bson:"test_split,omitempty"`
}

type modelDoc struct {
	Name               string `bson:"name"`
	ArchitectureFamily string `bson:"architecture_family"`
	Framework          string `bson:"framework"`
}

type configDoc struct {
	Seed         int      `bson:"seed"`
	BatchSize    int      `bson:"batch_size"`
	Epochs       int      `bson:"epochs"`
	LearningRate float64  `bson:"learning_rate"`
	Optimizer    string   `bson:"optimizer"`
	Dropout      *float64 `bson:"dropout,omitempty"`
	WeightDecay  *float64 `bson:"weight_decay,omitempty"`
}

type metricsDoc struct {
	Primary   string   `bson:"primary"`
	Secondary []string `bson:"secondary,omitempty"`
	GoalValue float64  `bson:"goal_value"`
	Loss      string   `bson:"loss,omitempty"`
}

type policyDoc struct {
	BudgetMinutes int    `bson:"budget_minutes"`
	LicenseTag    string `bson:"license_tag,omitempty"`
	CPUOnly       bool   `bson:"cpu_only"`
}

type planRecordDoc struct {
	ID             string                     `bson:"_id"`
	PaperID        string                     `bson:"paper_id"`
	Document       planDocumentDoc            `bson:"document"`
	EnvFingerprint string                     `bson:"env_fingerprint,omitempty"`
	State          entities.PlanSynthesisState `bson:"state"`
	Status         entities.Status            `bson:"status"`
	ReasoningText  string                     `bson:"reasoning_text,omitempty"`
	ErrorCode      string                     `bson:"error_code,omitempty"`
	ErrorMessage   string                     `bson:"error_message,omitempty"`
	CreatedAt      time.Time                  `bson:"created_at"`
	UpdatedAt      time.Time                  `bson:"updated_at"`
}

func toPlanDoc(p *entities.PlanRecord) *planRecordDoc {
	just := map[string]justificationDoc{}
	for k, v := range p.Document.Justifications {
		just[k] = justificationDoc{Quote: v.Quote, Citation: v.Citation}
	}
	return &planRecordDoc{
		ID: p.ID, PaperID: p.PaperID,
		Document: planDocumentDoc{
			Version: p.Document.Version,
			Dataset: datasetDoc{
				CanonicalName: p.Document.Dataset.CanonicalName,
				SourceKind:    p.Document.Dataset.SourceKind,
				LoaderHints:   p.Document.Dataset.LoaderHints,
				TrainSplit:    p.Document.Dataset.TrainSplit,
				TestSplit:     p.Document.Dataset.TestSplit,
			},
			Model: modelDoc{
				Name: p.Document.Model.Name, ArchitectureFamily: p.Document.Model.ArchitectureFamily,
				Framework: p.Document.Model.Framework,
			},
			Config: configDoc{
				Seed: p.Document.Config.Seed, BatchSize: p.Document.Config.BatchSize,
				Epochs: p.Document.Config.Epochs, LearningRate: p.Document.Config.LearningRate,
				Optimizer: p.Document.Config.Optimizer, Dropout: p.Document.Config.Dropout,
				WeightDecay: p.Document.Config.WeightDecay,
			},
			Metrics: metricsDoc{
				Primary: p.Document.Metrics.Primary, Secondary: p.Document.Metrics.Secondary,
				GoalValue: p.Document.Metrics.GoalValue, Loss: p.Document.Metrics.Loss,
			},
			Justifications: just,
			Policy: policyDoc{
				BudgetMinutes: p.Document.Policy.BudgetMinutes,
				LicenseTag:    p.Document.Policy.LicenseTag,
				CPUOnly:       p.Document.Policy.CPUOnly,
			},
			Visualization: p.Document.VisualizationHints,
		},
		EnvFingerprint: p.EnvFingerprint,
		State:          p.State,
		Status:         p.Status,
		ReasoningText:  p.ReasoningText,
		ErrorCode:      p.ErrorCode,
		ErrorMessage:   p.ErrorMessage,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (d *planRecordDoc) toEntity() *entities.PlanRecord {
	just := map[string]entities.Justification{}
	for k, v := range d.Document.Justifications {
		just[k] = entities.Justification{Quote: v.Quote, Citation: v.Citation}
	}
	return &entities.PlanRecord{
		ID: d.ID, PaperID: d.PaperID,
		Document: entities.PlanDocument{
			Version: d.Document.Version,
			Dataset: entities.PlanDataset{
				CanonicalName: d.Document.Dataset.CanonicalName, SourceKind: d.Document.Dataset.SourceKind,
				LoaderHints: d.Document.Dataset.LoaderHints, TrainSplit: d.Document.Dataset.TrainSplit,
				TestSplit: d.Document.Dataset.TestSplit,
			},
			Model: entities.PlanModel{
				Name: d.Document.Model.Name, ArchitectureFamily: d.Document.Model.ArchitectureFamily,
				Framework: d.Document.Model.Framework,
			},
			Config: entities.PlanConfig{
				Seed: d.Document.Config.Seed, BatchSize: d.Document.Config.BatchSize,
				Epochs: d.Document.Config.Epochs, LearningRate: d.Document.Config.LearningRate,
				Optimizer: d.Document.Config.Optimizer, Dropout: d.Document.Config.Dropout,
				WeightDecay: d.Document.Config.WeightDecay,
			},
			Metrics: entities.PlanMetrics{
				Primary: d.Document.Metrics.Primary, Secondary: d.Document.Metrics.Secondary,
				GoalValue: d.Document.Metrics.GoalValue, Loss: d.Document.Metrics.Loss,
			},
			Justifications: just,
			Policy: entities.PlanPolicy{
				BudgetMinutes: d.Document.Policy.BudgetMinutes,
				LicenseTag:    d.Document.Policy.LicenseTag,
				CPUOnly:       d.Document.Policy.CPUOnly,
			},
			VisualizationHints: d.Document.Visualization,
		},
		EnvFingerprint: d.EnvFingerprint,
		State:          d.State,
		Status:         d.Status,
		ReasoningText:  d.ReasoningText,
		ErrorCode:      d.ErrorCode,
		ErrorMessage:   d.ErrorMessage,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (s *plansStore) Insert(ctx context.Context, p *entities.PlanRecord) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, toPlanDoc(p)); err != nil {
		return fmt.Errorf("mongo insert plan: %w", err)
	}
	return nil
}

func (s *plansStore) GetByID(ctx context.Context, id string) (*entities.PlanRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var d planRecordDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo get plan %q: %w", id, err)
	}
	return d.toEntity(), nil
}

func (s *plansStore) ListByPaper(ctx context.Context, paperID string) ([]*entities.PlanRecord, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"paper_id": paperID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list plans: %w", err)
	}
	defer cur.Close(ctx)
	var out []*entities.PlanRecord
	for cur.Next(ctx) {
		var d planRecordDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toEntity())
	}
	return out, cur.Err()
}

func (s *plansStore) UpdateState(ctx context.Context, id string, state entities.PlanSynthesisState, status entities.Status, errCode, errMsg string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"state": state, "status": status,
		"error_code": errCode, "error_message": errMsg,
		"updated_at": time.Now().UTC(),
	}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo update plan state: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *plansStore) UpdateEnvFingerprint(ctx context.Context, id, fingerprint string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.M{"$set": bson.M{"env_fingerprint": fingerprint, "updated_at": time.Now().UTC()}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo update env fingerprint: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- runs ---

type runsStore struct {
	coll      *mongodriver.Collection
	plansColl *mongodriver.Collection
	timeout   time.Duration
}

type runDoc struct {
	ID             string          `bson:"_id"`
	PlanID         string          `bson:"plan_id"`
	PaperID        string          `bson:"paper_id"`
	Status         entities.Status `bson:"status"`
	Seed           int             `bson:"seed"`
	EnvFingerprint string          `bson:"env_fingerprint"`
	ErrorCode      string          `bson:"error_code,omitempty"`
	ErrorMessage   string          `bson:"error_message,omitempty"`
	CreatedAt      time.Time       `bson:"created_at"`
	StartedAt      time.Time       `bson:"started_at,omitempty"`
	CompletedAt    time.Time       `bson:"completed_at,omitempty"`
	DurationSec    float64         `bson:"duration_sec,omitempty"`
}

func toRunDoc(r *entities.Run) *runDoc {
	return &runDoc{
		ID: r.ID, PlanID: r.PlanID, PaperID: r.PaperID, Status: r.Status, Seed: r.Seed,
		EnvFingerprint: r.EnvFingerprint, ErrorCode: r.ErrorCode, ErrorMessage: r.ErrorMessage,
		CreatedAt: r.CreatedAt, StartedAt: r.StartedAt, CompletedAt: r.CompletedAt, DurationSec: r.DurationSec,
	}
}

func (d *runDoc) toEntity() *entities.Run {
	return &entities.Run{
		ID: d.ID, PlanID: d.PlanID, PaperID: d.PaperID, Status: d.Status, Seed: d.Seed,
		EnvFingerprint: d.EnvFingerprint, ErrorCode: d.ErrorCode, ErrorMessage: d.ErrorMessage,
		CreatedAt: d.CreatedAt, StartedAt: d.StartedAt, CompletedAt: d.CompletedAt, DurationSec: d.DurationSec,
	}
}

func (s *runsStore) Insert(ctx context.Context, r *entities.Run) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if _, err := s.coll.InsertOne(ctx, toRunDoc(r)); err != nil {
		return fmt.Errorf("mongo insert run: %w", err)
	}
	return nil
}

func (s *runsStore) GetByID(ctx context.Context, id string) (*entities.Run, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var d runDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo get run %q: %w", id, err)
	}
	return d.toEntity(), nil
}

func (s *runsStore) ListByPlan(ctx context.Context, planID string) ([]*entities.Run, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"plan_id": planID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list runs: %w", err)
	}
	defer cur.Close(ctx)
	var out []*entities.Run
	for cur.Next(ctx) {
		var d runDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, d.toEntity())
	}
	return out, cur.Err()
}

// LatestSucceededByPaper locates the most recent plan for paperID, then the
// most recent succeeded run for that plan: the pair the report stage derives
// claimed-vs-observed gaps from.
func (s *runsStore) LatestSucceededByPaper(ctx context.Context, paperID string) (*entities.Run, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	planOpts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var plan planRecordDoc
	if err := s.plansColl.FindOne(ctx, bson.M{"paper_id": paperID}, planOpts).Decode(&plan); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo find latest plan: %w", err)
	}

	runOpts := options.FindOne().SetSort(bson.D{{Key: "completed_at", Value: -1}})
	var run runDoc
	filter := bson.M{"plan_id": plan.ID, "status": entities.StatusSucceeded}
	if err := s.coll.FindOne(ctx, filter, runOpts).Decode(&run); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo find latest succeeded run: %w", err)
	}
	return run.toEntity(), nil
}

func (s *runsStore) UpdateStatus(ctx context.Context, id string, status entities.Status, errCode, errMsg string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.M{"$set": bson.M{"status": status, "error_code": errCode, "error_message": errMsg}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo update run status: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *runsStore) MarkStarted(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.M{"$set": bson.M{"status": entities.StatusRunning, "started_at": time.Now().UTC()}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo mark run started: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *runsStore) MarkCompleted(ctx context.Context, id string, status entities.Status, durationSec float64, errCode, errMsg string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"status": status, "completed_at": time.Now().UTC(), "duration_sec": durationSec,
		"error_code": errCode, "error_message": errMsg,
	}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo mark run completed: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- events ---

type eventsStore struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

type runEventDoc struct {
	ID        string         `bson:"_id"`
	RunID     string         `bson:"run_id"`
	Timestamp int64          `bson:"timestamp"`
	Type      string         `bson:"type"`
	Payload   map[string]any `bson:"payload,omitempty"`
}

func (s *eventsStore) Append(ctx context.Context, e *entities.RunEvent) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	doc := runEventDoc{ID: e.ID, RunID: e.RunID, Timestamp: e.Timestamp, Type: e.Type, Payload: e.Payload}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo append run event: %w", err)
	}
	return nil
}

func (s *eventsStore) ListByRun(ctx context.Context, runID string) ([]*entities.RunEvent, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"run_id": runID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo list run events: %w", err)
	}
	defer cur.Close(ctx)
	var out []*entities.RunEvent
	for cur.Next(ctx) {
		var d runEventDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &entities.RunEvent{ID: d.ID, RunID: d.RunID, Timestamp: d.Timestamp, Type: d.Type, Payload: d.Payload})
	}
	return out, cur.Err()
}

// --- assets ---

type assetsStore struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

type assetDoc struct {
	ID        string            `bson:"_id"`
	Kind      entities.AssetKind `bson:"kind"`
	Path      string            `bson:"path"`
	PlanID    string            `bson:"plan_id,omitempty"`
	RunID     string            `bson:"run_id,omitempty"`
	CreatedAt time.Time         `bson:"created_at"`
}

func (s *assetsStore) Insert(ctx context.Context, a *entities.Asset) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	doc := assetDoc{ID: a.ID, Kind: a.Kind, Path: a.Path, PlanID: a.PlanID, RunID: a.RunID, CreatedAt: a.CreatedAt}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo insert asset: %w", err)
	}
	return nil
}

func (s *assetsStore) ListByPlan(ctx context.Context, planID string) ([]*entities.Asset, error) {
	return s.list(ctx, bson.M{"plan_id": planID})
}

func (s *assetsStore) ListByRun(ctx context.Context, runID string) ([]*entities.Asset, error) {
	return s.list(ctx, bson.M{"run_id": runID})
}

func (s *assetsStore) list(ctx context.Context, filter bson.M) ([]*entities.Asset, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo list assets: %w", err)
	}
	defer cur.Close(ctx)
	var out []*entities.Asset
	for cur.Next(ctx) {
		var d assetDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &entities.Asset{ID: d.ID, Kind: d.Kind, Path: d.Path, PlanID: d.PlanID, RunID: d.RunID, CreatedAt: d.CreatedAt})
	}
	return out, cur.Err()
}
