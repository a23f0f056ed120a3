package codegen

import (
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// SyntheticDatasetGenerator is the fallback used when neither a registry
// hit nor a paper dataset upload is available: a deterministic synthetic
// classification dataset so the rest of the pipeline still has something to
// run against.
type SyntheticDatasetGenerator struct{}

func (SyntheticDatasetGenerator) Imports(*entities.PlanDocument) []string {
	return []string{
		"from sklearn.datasets import make_classification",
		"from sklearn.model_selection import train_test_split",
	}
}

func (SyntheticDatasetGenerator) Code(plan *entities.PlanDocument) string {
	return fmt.Sprintf(`X, y = make_classification(
    n_samples=2000, n_features=20, n_informative=10, n_classes=2, random_state=SEED
)
X_train, X_test, y_train, y_test = train_test_split(
    X, y, test_size=0.2, random_state=SEED, stratify=y
)
log_event("dataset_loaded", {
    "source": "synthetic",
    "name": %q,
    "train_size": len(X_train),
    "test_size": len(X_test),
})
`, plan.Dataset.CanonicalName)
}

func (SyntheticDatasetGenerator) Requirements(*entities.PlanDocument) []string {
	return nil
}
