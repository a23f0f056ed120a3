// Package store defines the metadata-store interfaces consumed by the
// pipeline state machine: insert, get-by-id, lookup-by-checksum,
// list-by-paper, replace (delete-then-insert in one transaction), and
// single-field update, plus cascading delete on paper removal.
package store

import (
	"context"
	"errors"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// ErrNotFound is returned by Get/Lookup operations when no matching record exists.
var ErrNotFound = errors.New("store: not found")

type (
	// Papers persists Paper entities.
	Papers interface {
		// Insert creates a new paper, atomically carrying any DatasetUpload set
		// on the entity. There is no separate "attach upload" operation: the
		// source bug (split insert) is prevented by construction.
		Insert(ctx context.Context, paper *entities.Paper) error
		// GetByID returns a paper by id, or ErrNotFound.
		GetByID(ctx context.Context, id string) (*entities.Paper, error)
		// LookupByChecksum returns a paper by content checksum, or ErrNotFound.
		// Used by ingest to implement dedupe.
		LookupByChecksum(ctx context.Context, checksum string) (*entities.Paper, error)
		// UpdateStageStatus updates a paper's stage/status (and optional error
		// code/message) without touching other fields.
		UpdateStageStatus(ctx context.Context, id string, stage entities.Stage, status entities.Status, errCode, errMsg string) error
		// UpdateIndexHandle sets the provider-side searchable index handle.
		UpdateIndexHandle(ctx context.Context, id, handle string) error
		// Delete removes a paper and cascades to its claims, plans, runs, events, assets.
		Delete(ctx context.Context, id string) error
	}

	// Claims persists Claim entities with replace-on-extract semantics.
	Claims interface {
		// Replace deletes all existing claims for paperID and inserts the new
		// set within a single transaction. This is never implemented as
		// upsert-by-hash: extractor output is not stable across runs.
		Replace(ctx context.Context, paperID string, claims []*entities.Claim) error
		// ListByPaper returns all claims for a paper, in insertion order.
		ListByPaper(ctx context.Context, paperID string) ([]*entities.Claim, error)
		// GetByIDs returns the claims matching the given ids, in the order requested.
		GetByIDs(ctx context.Context, ids []string) ([]*entities.Claim, error)
	}

	// Plans persists PlanRecord entities.
	Plans interface {
		Insert(ctx context.Context, plan *entities.PlanRecord) error
		GetByID(ctx context.Context, id string) (*entities.PlanRecord, error)
		ListByPaper(ctx context.Context, paperID string) ([]*entities.PlanRecord, error)
		// UpdateState transitions the plan's synthesis state/status.
		UpdateState(ctx context.Context, id string, state entities.PlanSynthesisState, status entities.Status, errCode, errMsg string) error
		// UpdateEnvFingerprint is set only after successful materialize; it
		// also resets prior fingerprints when materialize re-runs (idempotent
		// overwrite).
		UpdateEnvFingerprint(ctx context.Context, id, fingerprint string) error
	}

	// Runs persists Run entities. Runs are append-only: no replace semantics.
	Runs interface {
		Insert(ctx context.Context, run *entities.Run) error
		GetByID(ctx context.Context, id string) (*entities.Run, error)
		ListByPlan(ctx context.Context, planID string) ([]*entities.Run, error)
		// LatestSucceededByPaper returns the most recent succeeded run for the
		// paper's most recent plan, used by Report.
		LatestSucceededByPaper(ctx context.Context, paperID string) (*entities.Run, error)
		UpdateStatus(ctx context.Context, id string, status entities.Status, errCode, errMsg string) error
		MarkStarted(ctx context.Context, id string) error
		MarkCompleted(ctx context.Context, id string, status entities.Status, durationSec float64, errCode, errMsg string) error
	}

	// Events persists RunEvent entities in monotonic insertion order.
	Events interface {
		Append(ctx context.Context, event *entities.RunEvent) error
		ListByRun(ctx context.Context, runID string) ([]*entities.RunEvent, error)
	}

	// Assets persists Asset handles.
	Assets interface {
		Insert(ctx context.Context, asset *entities.Asset) error
		ListByPlan(ctx context.Context, planID string) ([]*entities.Asset, error)
		ListByRun(ctx context.Context, runID string) ([]*entities.Asset, error)
	}

	// Store aggregates every entity store the pipeline needs.
	Store interface {
		Papers() Papers
		Claims() Claims
		Plans() Plans
		Runs() Runs
		Events() Events
		Assets() Assets
	}
)
