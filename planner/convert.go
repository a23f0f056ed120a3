package planner

import (
	"encoding/json"
	"strconv"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// toPlanDocument converts a sanitized PlanDraft (all sanitizer steps already
// applied) into the strict entities.PlanDocument. Callers must run Sanitize's
// steps first; this function does not itself validate anything.
func toPlanDocument(d *PlanDraft) *entities.PlanDocument {
	doc := &entities.PlanDocument{
		Version: entities.PlanVersion,
		Justifications: map[string]entities.Justification{},
	}
	if d.Dataset != nil {
		doc.Dataset = entities.PlanDataset{
			CanonicalName: d.Dataset.CanonicalName,
			SourceKind:    d.Dataset.SourceKind,
			LoaderHints:   d.Dataset.LoaderHints,
			TrainSplit:    d.Dataset.TrainSplit,
			TestSplit:     d.Dataset.TestSplit,
		}
	}
	if d.Model != nil {
		doc.Model = entities.PlanModel{
			Name:               d.Model.Name,
			ArchitectureFamily: d.Model.ArchitectureFam,
			Framework:          d.Model.FrameworkTag,
		}
	}
	if d.Config != nil {
		doc.Config = entities.PlanConfig{
			Seed:         numberToInt(d.Config.Seed),
			BatchSize:    numberToInt(d.Config.BatchSize),
			Epochs:       numberToInt(d.Config.Epochs),
			LearningRate: numberToFloat(d.Config.LearningRate),
			Optimizer:    d.Config.Optimizer,
			Dropout:      numberToFloatPtr(d.Config.Dropout),
			WeightDecay:  numberToFloatPtr(d.Config.WeightDecay),
		}
	}
	if d.Metrics != nil {
		doc.Metrics = entities.PlanMetrics{
			Primary:   d.Metrics.Primary,
			Secondary: d.Metrics.Secondary,
			GoalValue: numberToFloat(d.Metrics.Goal),
			Loss:      d.Metrics.Loss,
		}
	}
	for field, j := range d.Justify {
		doc.Justifications[field] = entities.Justification{Quote: j.Quote, Citation: j.Citation}
	}
	if d.Policy != nil {
		cpuOnly := true
		if d.Policy.CPUOnly != nil {
			cpuOnly = *d.Policy.CPUOnly
		}
		doc.Policy = entities.PlanPolicy{
			BudgetMinutes: numberToInt(d.Policy.BudgetMinutes),
			LicenseTag:    d.Policy.LicenseTag,
			CPUOnly:       cpuOnly,
		}
	}
	doc.VisualizationHints = d.VizHints
	return doc
}

func numberToInt(n json.Number) int {
	if n == "" {
		return 0
	}
	v, _ := strconv.Atoi(string(n))
	return v
}

func numberToFloat(n json.Number) float64 {
	if n == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(string(n), 64)
	return v
}

func numberToFloatPtr(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil
	}
	return &v
}
