// Package memory provides an in-memory implementation of store.Store.
// Suitable for unit tests and local development where MongoDB is not
// available: mutex-guarded maps with context cancellation checks.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/store"
)

// Store is an in-memory implementation of store.Store. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	papers map[string]*entities.Paper
	claims map[string]*entities.Claim // keyed by claim id
	plans  map[string]*entities.PlanRecord
	runs   map[string]*entities.Run
	events map[string][]*entities.RunEvent // keyed by run id
	assets map[string]*entities.Asset
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		papers: make(map[string]*entities.Paper),
		claims: make(map[string]*entities.Claim),
		plans:  make(map[string]*entities.PlanRecord),
		runs:   make(map[string]*entities.Run),
		events: make(map[string][]*entities.RunEvent),
		assets: make(map[string]*entities.Asset),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Papers() store.Papers { return (*papersView)(s) }
func (s *Store) Claims() store.Claims { return (*claimsView)(s) }
func (s *Store) Plans() store.Plans   { return (*plansView)(s) }
func (s *Store) Runs() store.Runs     { return (*runsView)(s) }
func (s *Store) Events() store.Events { return (*eventsView)(s) }
func (s *Store) Assets() store.Assets { return (*assetsView)(s) }

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

type papersView Store

func (s *papersView) Insert(ctx context.Context, p *entities.Paper) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	st.papers[p.ID] = &cp
	return nil
}

func (s *papersView) GetByID(ctx context.Context, id string) (*entities.Paper, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	p, ok := st.papers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *papersView) LookupByChecksum(ctx context.Context, checksum string) (*entities.Paper, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, p := range st.papers {
		if p.Checksum == checksum {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *papersView) UpdateStageStatus(ctx context.Context, id string, stage entities.Stage, status entities.Status, errCode, errMsg string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.papers[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Stage, p.Status, p.ErrorCode, p.ErrorMessage = stage, status, errCode, errMsg
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *papersView) UpdateIndexHandle(ctx context.Context, id, handle string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.papers[id]
	if !ok {
		return store.ErrNotFound
	}
	p.IndexHandle = handle
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *papersView) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.papers, id)

	var planIDs []string
	for pid, plan := range st.plans {
		if plan.PaperID == id {
			planIDs = append(planIDs, pid)
			delete(st.plans, pid)
		}
	}
	planSet := make(map[string]bool, len(planIDs))
	for _, pid := range planIDs {
		planSet[pid] = true
	}
	var runIDs []string
	for rid, r := range st.runs {
		if planSet[r.PlanID] {
			runIDs = append(runIDs, rid)
			delete(st.runs, rid)
		}
	}
	for _, rid := range runIDs {
		delete(st.events, rid)
	}
	for aid, a := range st.assets {
		if planSet[a.PlanID] {
			delete(st.assets, aid)
			continue
		}
		for _, rid := range runIDs {
			if a.RunID == rid {
				delete(st.assets, aid)
				break
			}
		}
	}
	for cid, c := range st.claims {
		if c.PaperID == id {
			delete(st.claims, cid)
		}
	}
	return nil
}

type claimsView Store

func (s *claimsView) Replace(ctx context.Context, paperID string, claims []*entities.Claim) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	for cid, c := range st.claims {
		if c.PaperID == paperID {
			delete(st.claims, cid)
		}
	}
	now := time.Now().UTC()
	for _, c := range claims {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		cp := *c
		st.claims[c.ID] = &cp
	}
	return nil
}

func (s *claimsView) ListByPaper(ctx context.Context, paperID string) ([]*entities.Claim, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*entities.Claim
	for _, c := range st.claims {
		if c.PaperID == paperID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *claimsView) GetByIDs(ctx context.Context, ids []string) ([]*entities.Claim, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*entities.Claim, 0, len(ids))
	for _, id := range ids {
		if c, ok := st.claims[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type plansView Store

func (s *plansView) Insert(ctx context.Context, p *entities.PlanRecord) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	st.plans[p.ID] = &cp
	return nil
}

func (s *plansView) GetByID(ctx context.Context, id string) (*entities.PlanRecord, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	p, ok := st.plans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *plansView) ListByPaper(ctx context.Context, paperID string) ([]*entities.PlanRecord, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*entities.PlanRecord
	for _, p := range st.plans {
		if p.PaperID == paperID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *plansView) UpdateState(ctx context.Context, id string, state entities.PlanSynthesisState, status entities.Status, errCode, errMsg string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.plans[id]
	if !ok {
		return store.ErrNotFound
	}
	p.State, p.Status, p.ErrorCode, p.ErrorMessage = state, status, errCode, errMsg
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *plansView) UpdateEnvFingerprint(ctx context.Context, id, fingerprint string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.plans[id]
	if !ok {
		return store.ErrNotFound
	}
	p.EnvFingerprint = fingerprint
	p.UpdatedAt = time.Now().UTC()
	return nil
}

type runsView Store

func (s *runsView) Insert(ctx context.Context, r *entities.Run) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cp := *r
	st.runs[r.ID] = &cp
	return nil
}

func (s *runsView) GetByID(ctx context.Context, id string) (*entities.Run, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *runsView) ListByPlan(ctx context.Context, planID string) ([]*entities.Run, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*entities.Run
	for _, r := range st.runs {
		if r.PlanID == planID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *runsView) LatestSucceededByPaper(ctx context.Context, paperID string) (*entities.Run, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()

	var latestPlan *entities.PlanRecord
	for _, p := range st.plans {
		if p.PaperID != paperID {
			continue
		}
		if latestPlan == nil || p.CreatedAt.After(latestPlan.CreatedAt) {
			latestPlan = p
		}
	}
	if latestPlan == nil {
		return nil, store.ErrNotFound
	}
	var latestRun *entities.Run
	for _, r := range st.runs {
		if r.PlanID != latestPlan.ID || r.Status != entities.StatusSucceeded {
			continue
		}
		if latestRun == nil || r.CompletedAt.After(latestRun.CompletedAt) {
			latestRun = r
		}
	}
	if latestRun == nil {
		return nil, store.ErrNotFound
	}
	cp := *latestRun
	return &cp, nil
}

func (s *runsView) UpdateStatus(ctx context.Context, id string, status entities.Status, errCode, errMsg string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status, r.ErrorCode, r.ErrorMessage = status, errCode, errMsg
	return nil
}

func (s *runsView) MarkStarted(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = entities.StatusRunning
	r.StartedAt = time.Now().UTC()
	return nil
}

func (s *runsView) MarkCompleted(ctx context.Context, id string, status entities.Status, durationSec float64, errCode, errMsg string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = status
	r.CompletedAt = time.Now().UTC()
	r.DurationSec = durationSec
	r.ErrorCode, r.ErrorMessage = errCode, errMsg
	return nil
}

type eventsView Store

func (s *eventsView) Append(ctx context.Context, e *entities.RunEvent) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	st.events[e.RunID] = append(st.events[e.RunID], &cp)
	return nil
}

func (s *eventsView) ListByRun(ctx context.Context, runID string) ([]*entities.RunEvent, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*entities.RunEvent, len(st.events[runID]))
	copy(out, st.events[runID])
	return out, nil
}

type assetsView Store

func (s *assetsView) Insert(ctx context.Context, a *entities.Asset) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	st := (*Store)(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	st.assets[a.ID] = &cp
	return nil
}

func (s *assetsView) ListByPlan(ctx context.Context, planID string) ([]*entities.Asset, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*entities.Asset
	for _, a := range st.assets {
		if a.PlanID == planID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *assetsView) ListByRun(ctx context.Context, runID string) ([]*entities.Asset, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	st := (*Store)(s)
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*entities.Asset
	for _, a := range st.assets {
		if a.RunID == runID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}
