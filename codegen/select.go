package codegen

import (
	"strings"

	"github.com/PIP-Team-3/paper2notebook/dataset"
	"github.com/PIP-Team-3/paper2notebook/entities"
)

// SelectDataset chooses a DatasetGenerator: look up the plan's canonical
// dataset name in the registry and dispatch on source kind; on a registry
// miss, inspect the paper's upload format tag; absent both, dispatch on the
// plan's own dataset source kind when set, and otherwise fall back to
// synthetic.
func SelectDataset(plan *entities.PlanDocument, reg *dataset.Registry, upload *entities.DatasetUpload) DatasetGenerator {
	if reg != nil {
		if entry, ok := reg.Lookup(plan.Dataset.CanonicalName); ok {
			return bySourceKind(entry.SourceKind)
		}
	}
	if upload != nil {
		switch strings.ToLower(upload.Format) {
		case "csv", "xlsx", "xls":
			return TabularDatasetGenerator{}
		}
	}
	if plan.Dataset.SourceKind != "" {
		return bySourceKind(dataset.SourceKind(plan.Dataset.SourceKind))
	}
	return SyntheticDatasetGenerator{}
}

func bySourceKind(kind dataset.SourceKind) DatasetGenerator {
	switch kind {
	case dataset.SourceHuggingface:
		return HuggingfaceDatasetGenerator{}
	case dataset.SourceTorchvision:
		return TorchvisionDatasetGenerator{}
	case dataset.SourceSklearn:
		return SklearnDatasetGenerator{}
	case dataset.SourceSynthetic:
		return SyntheticDatasetGenerator{}
	default:
		if kind == "tabular" {
			return TabularDatasetGenerator{}
		}
		return SyntheticDatasetGenerator{}
	}
}

// SelectModel chooses a ModelGenerator. Currently a constant: the only
// supported family is the logistic regression baseline. Future dispatch is
// on plan.Model.ArchitectureFamily.
func SelectModel(plan *entities.PlanDocument) ModelGenerator {
	return BaselineModelGenerator{}
}
