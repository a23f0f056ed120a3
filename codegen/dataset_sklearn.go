package codegen

import (
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// sklearnLoaders maps a registry loader hint to the sklearn.datasets loader
// function name.
var sklearnLoaders = map[string]string{
	"load_iris":          "load_iris",
	"load_wine":          "load_wine",
	"load_breast_cancer": "load_breast_cancer",
	"load_digits":        "load_digits",
}

// SklearnDatasetGenerator loads one of sklearn's small bundled datasets.
type SklearnDatasetGenerator struct{}

func (SklearnDatasetGenerator) Imports(*entities.PlanDocument) []string {
	return []string{
		"from sklearn import datasets as sk_datasets",
		"from sklearn.model_selection import train_test_split",
	}
}

func (SklearnDatasetGenerator) Code(plan *entities.PlanDocument) string {
	loader := plan.Dataset.LoaderHints["loader"]
	if loader == "" {
		loader = "load_iris"
	}
	return fmt.Sprintf(`bunch = sk_datasets.%s()
X, y = bunch.data, bunch.target
X_train, X_test, y_train, y_test = train_test_split(
    X, y, test_size=0.2, random_state=SEED, stratify=y
)
log_event("dataset_loaded", {
    "source": "sklearn",
    "name": %q,
    "train_size": len(X_train),
    "test_size": len(X_test),
})
`, loader, plan.Dataset.CanonicalName)
}

func (SklearnDatasetGenerator) Requirements(*entities.PlanDocument) []string {
	return nil // covered by the base scikit-learn pin
}
