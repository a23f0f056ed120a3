// Package mongo implements store.Store on top of MongoDB: one collection per
// entity kind, bson documents, InsertOne for creates and UpdateOne for
// status and field updates, and a client-session transaction for the claims replace-delete-insert
// invariant.
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

const defaultOpTimeout = 5 * time.Second

// Options configures the Mongo-backed metadata store.
type Options struct {
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

// Store implements store.Store against a single Mongo database, one
// collection per entity kind.
type Store struct {
	db      *mongodriver.Database
	client  *mongodriver.Client
	timeout time.Duration

	papers *papersStore
	claims *claimsStore
	plans  *plansStore
	runs   *runsStore
	events *eventsStore
	assets *assetsStore
}

// New builds a Store from a connected Mongo client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	s := &Store{db: db, client: opts.Client, timeout: timeout}
	s.papers = &papersStore{coll: db.Collection("papers"), timeout: timeout}
	s.claims = &claimsStore{coll: db.Collection("claims"), client: opts.Client, timeout: timeout}
	s.plans = &plansStore{coll: db.Collection("plans"), timeout: timeout}
	s.runs = &runsStore{coll: db.Collection("runs"), plansColl: db.Collection("plans"), timeout: timeout}
	s.events = &eventsStore{coll: db.Collection("run_events"), timeout: timeout}
	s.assets = &assetsStore{coll: db.Collection("assets"), timeout: timeout}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := s.papers.coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "checksum", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("ensure checksum index: %w", err)
	}
	return s, nil
}

func (s *Store) Papers() store.Papers { return s.papers }
func (s *Store) Claims() store.Claims { return s.claims }
func (s *Store) Plans() store.Plans   { return s.plans }
func (s *Store) Runs() store.Runs     { return s.runs }
func (s *Store) Events() store.Events { return s.events }
func (s *Store) Assets() store.Assets { return s.assets }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// --- papers ---

type papersStore struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

type datasetUploadDoc struct {
	BlobPath string `bson:"blob_path"`
	Format   string `bson:"format"`
	Filename string `bson:"filename"`
}

type paperDoc struct {
	ID            string             `bson:"_id"`
	Title         string             `bson:"title"`
	SourceURL     string             `bson:"source_url,omitempty"`
	BlobPath      string             `bson:"blob_path"`
	Checksum      string             `bson:"checksum"`
	IndexHandle   string             `bson:"index_handle,omitempty"`
	DatasetUpload *datasetUploadDoc  `bson:"dataset_upload,omitempty"`
	Stage         entities.Stage     `bson:"stage"`
	Status        entities.Status    `bson:"status"`
	ErrorCode     string             `bson:"error_code,omitempty"`
	ErrorMessage  string             `bson:"error_message,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func toPaperDoc(p *entities.Paper) *paperDoc {
	d := &paperDoc{
		ID: p.ID, Title: p.Title, SourceURL: p.SourceURL, BlobPath: p.BlobPath,
		Checksum: p.Checksum, IndexHandle: p.IndexHandle,
		Stage: p.Stage, Status: p.Status,
		ErrorCode: p.ErrorCode, ErrorMessage: p.ErrorMessage,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	if p.DatasetUpload != nil {
		d.DatasetUpload = &datasetUploadDoc{
			BlobPath: p.DatasetUpload.BlobPath,
			Format:   p.DatasetUpload.Format,
			Filename: p.DatasetUpload.Filename,
		}
	}
	return d
}

func (d *paperDoc) toEntity() *entities.Paper {
	p := &entities.Paper{
		ID: d.ID, Title: d.Title, SourceURL: d.SourceURL, BlobPath: d.BlobPath,
		Checksum: d.Checksum, IndexHandle: d.IndexHandle,
		Stage: d.Stage, Status: d.Status,
		ErrorCode: d.ErrorCode, ErrorMessage: d.ErrorMessage,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if d.DatasetUpload != nil {
		p.DatasetUpload = &entities.DatasetUpload{
			BlobPath: d.DatasetUpload.BlobPath,
			Format:   d.DatasetUpload.Format,
			Filename: d.DatasetUpload.Filename,
		}
	}
	return p
}

func (s *papersStore) Insert(ctx context.Context, p *entities.Paper) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := s.coll.InsertOne(ctx, toPaperDoc(p))
	if err != nil {
		return fmt.Errorf("mongo insert paper: %w", err)
	}
	return nil
}

func (s *papersStore) GetByID(ctx context.Context, id string) (*entities.Paper, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var d paperDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo get paper %q: %w", id, err)
	}
	return d.toEntity(), nil
}

func (s *papersStore) LookupByChecksum(ctx context.Context, checksum string) (*entities.Paper, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	var d paperDoc
	if err := s.coll.FindOne(ctx, bson.M{"checksum": checksum}).Decode(&d); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongo lookup paper by checksum: %w", err)
	}
	return d.toEntity(), nil
}

func (s *papersStore) UpdateStageStatus(ctx context.Context, id string, stage entities.Stage, status entities.Status, errCode, errMsg string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.M{"$set": bson.M{
		"stage": stage, "status": status,
		"error_code": errCode, "error_message": errMsg,
		"updated_at": time.Now().UTC(),
	}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo update paper stage: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *papersStore) UpdateIndexHandle(ctx context.Context, id, handle string) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.M{"$set": bson.M{"index_handle": handle, "updated_at": time.Now().UTC()}}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("mongo update index handle: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a paper and cascades to claims, plans, runs, events, assets
// within a single client-session transaction, using Mongo multi-document
// transactions so the cascade is all-or-nothing.
func (s *papersStore) Delete(ctx context.Context, id string) error {
	sess, err := s.coll.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("mongo start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongodriver.SessionContext) (any, error) {
		db := s.coll.Database()
		plans, err := db.Collection("plans").Distinct(sc, "_id", bson.M{"paper_id": id})
		if err != nil {
			return nil, err
		}
		planIDs := make([]string, 0, len(plans))
		for _, v := range plans {
			if sv, ok := v.(string); ok {
				planIDs = append(planIDs, sv)
			}
		}
		runs, err := db.Collection("runs").Distinct(sc, "_id", bson.M{"plan_id": bson.M{"$in": planIDs}})
		if err != nil {
			return nil, err
		}
		runIDs := make([]string, 0, len(runs))
		for _, v := range runs {
			if sv, ok := v.(string); ok {
				runIDs = append(runIDs, sv)
			}
		}
		if _, err := db.Collection("run_events").DeleteMany(sc, bson.M{"run_id": bson.M{"$in": runIDs}}); err != nil {
			return nil, err
		}
		if _, err := db.Collection("assets").DeleteMany(sc, bson.M{"$or": bson.A{
			bson.M{"run_id": bson.M{"$in": runIDs}},
			bson.M{"plan_id": bson.M{"$in": planIDs}},
		}}); err != nil {
			return nil, err
		}
		if _, err := db.Collection("runs").DeleteMany(sc, bson.M{"plan_id": bson.M{"$in": planIDs}}); err != nil {
			return nil, err
		}
		if _, err := db.Collection("plans").DeleteMany(sc, bson.M{"paper_id": id}); err != nil {
			return nil, err
		}
		if _, err := db.Collection("claims").DeleteMany(sc, bson.M{"paper_id": id}); err != nil {
			return nil, err
		}
		if _, err := db.Collection("papers").DeleteOne(sc, bson.M{"_id": id}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("mongo cascade delete paper %q: %w", id, err)
	}
	return nil
}

// --- claims ---

type claimsStore struct {
	coll    *mongodriver.Collection
	client  *mongodriver.Client
	timeout time.Duration
}

type claimDoc struct {
	ID                   string    `bson:"_id"`
	PaperID              string    `bson:"paper_id"`
	DatasetName          string    `bson:"dataset_name"`
	Split                string    `bson:"split,omitempty"`
	MetricName           string    `bson:"metric_name"`
	MetricValue          float64   `bson:"metric_value"`
	Units                string    `bson:"units,omitempty"`
	MethodSnippet        string    `bson:"method_snippet,omitempty"`
	SourceCitation       string    `bson:"source_citation"`
	Confidence           float64   `bson:"confidence"`
	DatasetFormat        string    `bson:"dataset_format,omitempty"`
	DatasetTargetColumn  string    `bson:"dataset_target_column,omitempty"`
	DatasetPreprocessing string    `bson:"dataset_preprocessing,omitempty"`
	DatasetURL           string    `bson:"dataset_url,omitempty"`
	CreatedAt            time.Time `bson:"created_at"`
}

func toClaimDoc(c *entities.Claim) *claimDoc {
	return &claimDoc{
		ID: c.ID, PaperID: c.PaperID, DatasetName: c.DatasetName, Split: c.Split,
		MetricName: c.MetricName, MetricValue: c.MetricValue, Units: c.Units,
		MethodSnippet: c.MethodSnippet, SourceCitation: c.SourceCitation, Confidence: c.Confidence,
		DatasetFormat: c.DatasetFormat, DatasetTargetColumn: c.DatasetTargetColumn,
		DatasetPreprocessing: c.DatasetPreprocessing, DatasetURL: c.DatasetURL,
		CreatedAt: c.CreatedAt,
	}
}

func (d *claimDoc) toEntity() *entities.Claim {
	return &entities.Claim{
		ID: d.ID, PaperID: d.PaperID, DatasetName: d.DatasetName, Split: d.Split,
		MetricName: d.MetricName, MetricValue: d.MetricValue, Units: d.Units,
		MethodSnippet: d.MethodSnippet, SourceCitation: d.SourceCitation, Confidence: d.Confidence,
		DatasetFormat: d.DatasetFormat, DatasetTargetColumn: d.DatasetTargetColumn,
		DatasetPreprocessing: d.DatasetPreprocessing, DatasetURL: d.DatasetURL,
		CreatedAt: d.CreatedAt,
	}
}

// Replace deletes all existing claims for paperID and inserts the new set
// within a single transaction, so two concurrent extract calls for the same
// paper never interleave their writes.
func (s *claimsStore) Replace(ctx context.Context, paperID string, claims []*entities.Claim) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo start session: %w", err)
	}
	defer sess.EndSession(ctx)

	now := time.Now().UTC()
	docs := make([]any, len(claims))
	for i, c := range claims {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		docs[i] = toClaimDoc(c)
	}

	_, err = sess.WithTransaction(ctx, func(sc mongodriver.SessionContext) (any, error) {
		if _, err := s.coll.DeleteMany(sc, bson.M{"paper_id": paperID}); err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, nil
		}
		if _, err := s.coll.InsertMany(sc, docs); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("mongo replace claims for paper %q: %w", paperID, err)
	}
	return nil
}

func (s *claimsStore) ListByPaper(ctx context.Context, paperID string) ([]*entities.Claim, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"paper_id": paperID})
	if err != nil {
		return nil, fmt.Errorf("mongo list claims: %w", err)
	}
	defer cur.Close(ctx)
	var out []*entities.Claim
	for cur.Next(ctx) {
		var d claimDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongo decode claim: %w", err)
		}
		out = append(out, d.toEntity())
	}
	return out, cur.Err()
}

func (s *claimsStore) GetByIDs(ctx context.Context, ids []string) ([]*entities.Claim, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("mongo get claims by ids: %w", err)
	}
	defer cur.Close(ctx)
	byID := map[string]*entities.Claim{}
	for cur.Next(ctx) {
		var d claimDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		byID[d.ID] = d.toEntity()
	}
	out := make([]*entities.Claim, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, cur.Err()
}
