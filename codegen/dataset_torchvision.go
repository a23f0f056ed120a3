package codegen

import (
	"fmt"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// TorchvisionDatasetGenerator downloads a torchvision dataset into a local
// cache and flattens it to numeric arrays, since the baseline model family
// is a classical classifier rather than a convolutional network.
type TorchvisionDatasetGenerator struct{}

func (TorchvisionDatasetGenerator) Imports(*entities.PlanDocument) []string {
	return []string{
		"import numpy as np",
		"from torchvision import datasets as tv_datasets, transforms",
	}
}

func (TorchvisionDatasetGenerator) Code(plan *entities.PlanDocument) string {
	cls := plan.Dataset.LoaderHints["class"]
	if cls == "" {
		cls = "MNIST"
	}
	return fmt.Sprintf(`tv_transform = transforms.Compose([transforms.ToTensor()])
train_ds = tv_datasets.%s(root=DATASET_CACHE_DIR, train=True, download=True, transform=tv_transform)
test_ds = tv_datasets.%s(root=DATASET_CACHE_DIR, train=False, download=True, transform=tv_transform)

def _flatten(ds):
    xs = np.stack([np.asarray(img).reshape(-1) for img, _ in ds])
    ys = np.array([label for _, label in ds])
    return xs, ys

X_train, y_train = _flatten(train_ds)
X_test, y_test = _flatten(test_ds)

log_event("dataset_loaded", {
    "source": "torchvision",
    "name": %q,
    "train_size": len(X_train),
    "test_size": len(X_test),
})
`, cls, cls, plan.Dataset.CanonicalName)
}

func (TorchvisionDatasetGenerator) Requirements(*entities.PlanDocument) []string {
	return []string{"torch==2.3.1", "torchvision==0.18.1"}
}
