package codegen

import (
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// HuggingfaceDatasetGenerator loads a dataset from the huggingface `datasets`
// hub and, for textual tasks, vectorizes it with a deterministic
// bag-of-words featurizer rather than an embedding model (CPU-only scope).
type HuggingfaceDatasetGenerator struct{}

func (HuggingfaceDatasetGenerator) Imports(*entities.PlanDocument) []string {
	return []string{
		"from datasets import load_dataset",
		"from sklearn.feature_extraction.text import CountVectorizer",
	}
}

func (HuggingfaceDatasetGenerator) Code(plan *entities.PlanDocument) string {
	hfDataset := plan.Dataset.LoaderHints["dataset"]
	if hfDataset == "" {
		hfDataset = plan.Dataset.CanonicalName
	}
	config := plan.Dataset.LoaderHints["config"]
	loadArgs := fmt.Sprintf("%q", hfDataset)
	if config != "" {
		loadArgs = fmt.Sprintf("%q, %q", hfDataset, config)
	}
	trainSplit := plan.Dataset.TrainSplit
	if trainSplit == "" {
		trainSplit = "train"
	}
	testSplit := plan.Dataset.TestSplit
	if testSplit == "" {
		testSplit = "test"
	}
	return fmt.Sprintf(`raw = load_dataset(%s)
train_raw = raw[%q]
test_raw = raw[%q]
text_field = "text" if "text" in train_raw.column_names else train_raw.column_names[0]
label_field = "label" if "label" in train_raw.column_names else train_raw.column_names[-1]

vectorizer = CountVectorizer(max_features=20000)
X_train = vectorizer.fit_transform(train_raw[text_field])
X_test = vectorizer.transform(test_raw[text_field])
y_train = train_raw[label_field]
y_test = test_raw[label_field]

log_event("dataset_loaded", {
    "source": "huggingface",
    "name": %q,
    "train_size": X_train.shape[0],
    "test_size": X_test.shape[0],
})
`, loadArgs, trainSplit, testSplit, plan.Dataset.CanonicalName)
}

func (HuggingfaceDatasetGenerator) Requirements(*entities.PlanDocument) []string {
	return []string{"datasets==2.19.1"}
}
