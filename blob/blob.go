// Package blob defines the object-store interface and the stable path
// conventions consumed by the ingest, materialize, and executor stages. The
// interface intentionally exposes only put/get/exists by path plus signed,
// time-limited read references, so the concrete vendor (S3, GCS, local
// disk) stays swappable.
package blob

import (
	"context"
	"fmt"
	"time"
)

// Store is the object-store interface the pipeline depends on.
type Store interface {
	// Put writes data at path, overwriting any existing object.
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// Get reads the object at path.
	Get(ctx context.Context, path string) ([]byte, error)
	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)
	// SignedURL returns a short-lived reference to the object, valid for ttl
	// (clamped by the implementation to its own maximum, e.g. 3600s).
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Default signed-reference TTLs.
const (
	DefaultSignedURLTTL = 120 * time.Second
	MaxSignedURLTTL     = 3600 * time.Second
)

// PaperPDFPath returns the stable path for a paper's PDF blob.
func PaperPDFPath(env, paperID string, t time.Time) string {
	return fmt.Sprintf("papers/%s/%04d/%02d/%02d/%s.pdf", env, t.Year(), t.Month(), t.Day(), paperID)
}

// PaperDatasetPath returns the stable path for a paper's optional dataset upload.
func PaperDatasetPath(env, paperID, ext string, t time.Time) string {
	return fmt.Sprintf("papers/%s/%04d/%02d/%02d/%s.dataset.%s", env, t.Year(), t.Month(), t.Day(), paperID, ext)
}

// NotebookPath returns the stable path for a plan's notebook artifact.
func NotebookPath(planID string) string {
	return fmt.Sprintf("plans/%s/notebook.ipynb", planID)
}

// RequirementsPath returns the stable path for a plan's pinned requirements file.
func RequirementsPath(planID string) string {
	return fmt.Sprintf("plans/%s/requirements.txt", planID)
}

// MetricsPath returns the stable path for a run's metrics.json artifact.
func MetricsPath(runID string) string {
	return fmt.Sprintf("runs/%s/metrics.json", runID)
}

// EventsPath returns the stable path for a run's events.jsonl artifact.
func EventsPath(runID string) string {
	return fmt.Sprintf("runs/%s/events.jsonl", runID)
}

// LogsPath returns the stable path for a run's captured stdout/stderr log.
func LogsPath(runID string) string {
	return fmt.Sprintf("runs/%s/logs.txt", runID)
}
