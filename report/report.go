// Package report computes the claimed-vs-observed gap for a paper's most
// recent successful run: a plain compute-and-return service (no framework
// dependency fits a single deterministic calculation better than hand-rolled
// arithmetic).
package report

import (
	"context"
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
	"github.com/PIP-Team-3/paper2notebook/store"
)

// Gap is the computed claimed-vs-observed comparison for one paper.
type Gap struct {
	PaperID    string
	RunID      string
	PlanID     string
	MetricName string

	// Claimed and Observed are both expressed in the same representation:
	// the one the source paper used for the claim (percent stays a
	// percent). See Representation.
	Claimed  float64
	Observed float64
	// GapPercent is ((Observed - Claimed) / Claimed) * 100, computed after
	// both sides are normalized to Representation.
	GapPercent float64

	// Representation is "percent" or "ratio": the scale Claimed and
	// Observed are both expressed in. Chosen by the originating claim's
	// Units field, per the resolved open question below.
	Representation string

	Citations []string
}

// representation resolves the percent-vs-ratio ambiguity papers leave
// inconsistent. The canonical representation is whatever the source paper
// used for the claim: if the claim's Units field
// is "%", both claimed and observed values are compared as percentages
// (0-100 scale); otherwise they are compared as ratios (0-1 scale).
//
// metrics.json always stores the observed value as a raw ratio in [0,1]
// (every notebook generator in this codebase reports scikit-learn metric
// functions directly, which return ratios). When the claim's representation
// is percent, the observed ratio is scaled by 100 before comparison so both
// sides share a representation; no conversion is applied in the ratio case.
func representation(units string) string {
	if units == "%" {
		return "percent"
	}
	return "ratio"
}

func normalizeObserved(observedRatio float64, rep string) float64 {
	if rep == "percent" {
		return observedRatio * 100
	}
	return observedRatio
}

// Compute takes the plan, the run, and that run's parsed metrics.json as
// located and loaded by the caller, and compares the observed primary metric
// against the plan's goal value expressed in the claim's original
// representation. st is not read.
func Compute(ctx context.Context, st store.Store, metricsJSON map[string]float64, paper *entities.Paper, plan *entities.PlanRecord, run *entities.Run, claims []*entities.Claim) (*Gap, error) {
	if plan == nil {
		return nil, p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodePlanNotFound, "no plan exists for this paper")
	}
	if run == nil || run.Status != entities.StatusSucceeded {
		return nil, p2nerrors.New(p2nerrors.KindInput, p2nerrors.CodePlanNotFound, "no succeeded run exists for this paper's latest plan")
	}

	metricName := plan.Document.Metrics.Primary
	observedRatio, ok := metricsJSON[metricName]
	if !ok {
		return nil, p2nerrors.Newf(p2nerrors.KindExecution, p2nerrors.CodeMetricsMissing, "metrics.json missing primary metric %q", metricName)
	}

	units := unitsForMetric(claims, plan.Document.Dataset.CanonicalName, metricName)
	rep := representation(units)

	claimed := plan.Document.Metrics.GoalValue
	observed := normalizeObserved(observedRatio, rep)

	var gapPercent float64
	if claimed != 0 {
		gapPercent = ((observed - claimed) / claimed) * 100
	}

	return &Gap{
		PaperID:        paper.ID,
		RunID:          run.ID,
		PlanID:         plan.ID,
		MetricName:     metricName,
		Claimed:        claimed,
		Observed:       observed,
		GapPercent:     gapPercent,
		Representation: rep,
		Citations:      citationsFor(claims, metricName),
	}, nil
}

func unitsForMetric(claims []*entities.Claim, datasetName, metricName string) string {
	for _, c := range claims {
		if c.MetricName == metricName && (datasetName == "" || c.DatasetName == datasetName) {
			return c.Units
		}
	}
	for _, c := range claims {
		if c.MetricName == metricName {
			return c.Units
		}
	}
	return ""
}

func citationsFor(claims []*entities.Claim, metricName string) []string {
	var out []string
	for _, c := range claims {
		if c.MetricName == metricName && c.SourceCitation != "" {
			out = append(out, c.SourceCitation)
		}
	}
	return out
}

// Summary renders a short human-readable line, useful for CLI output and
// logs.
func (g *Gap) Summary() string {
	return fmt.Sprintf("%s: claimed=%.4g observed=%.4g gap=%.2f%% (%s)", g.MetricName, g.Claimed, g.Observed, g.GapPercent, g.Representation)
}
