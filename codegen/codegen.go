// Package codegen implements the notebook code generators: small,
// template-emitting components that turn a sanitized plan into Python source
// fragments plus their import and requirement sets. Grounded on the
// teacher's factory-selection pattern for provider adapters (pick an
// implementation by a typed discriminant, fall back to a default), adapted
// here from model-provider selection to dataset/model-family selection.
package codegen

import "github.com/PIP-Team-3/paper2notebook/entities"

// DatasetGenerator emits the code that loads and prepares a plan's dataset.
type DatasetGenerator interface {
	// Imports returns the import statements this generator needs.
	Imports(plan *entities.PlanDocument) []string
	// Code returns the top-level code fragment that loads the dataset,
	// applies any feature encoding, and emits a "dataset_loaded" log event.
	Code(plan *entities.PlanDocument) string
	// Requirements returns pinned dependency strings this generator needs.
	Requirements(plan *entities.PlanDocument) []string
}

// ModelGenerator emits the code that trains and evaluates a plan's model.
type ModelGenerator interface {
	Imports(plan *entities.PlanDocument) []string
	Code(plan *entities.PlanDocument) string
	Requirements(plan *entities.PlanDocument) []string
}

// baseRequirements is the default pin set present in every generated
// notebook's requirements file regardless of which generators ran.
var baseRequirements = []string{
	"numpy==1.26.4",
	"pandas==2.2.2",
	"scikit-learn==1.4.2",
	"matplotlib==3.8.4",
}

// BaseRequirements returns the default base requirement set (numeric,
// tabular, plotting, sklearn) combined into every notebook.
func BaseRequirements() []string {
	out := make([]string, len(baseRequirements))
	copy(out, baseRequirements)
	return out
}
