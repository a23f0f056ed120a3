package notebook

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

type fakeGenerator struct {
	imports      []string
	code         string
	requirements []string
}

func (f fakeGenerator) Imports(plan *entities.PlanDocument) []string      { return f.imports }
func (f fakeGenerator) Code(plan *entities.PlanDocument) string           { return f.code }
func (f fakeGenerator) Requirements(plan *entities.PlanDocument) []string { return f.requirements }

func testPlan() *entities.PlanDocument {
	return &entities.PlanDocument{
		Version: "1.1",
		Dataset: entities.PlanDataset{CanonicalName: "sst2", SourceKind: "huggingface"},
		Model:   entities.PlanModel{Name: "logreg-tfidf", Framework: "sklearn"},
		Metrics: entities.PlanMetrics{Primary: "accuracy", GoalValue: 0.881},
		Justifications: map[string]entities.Justification{
			"dataset": {Quote: "We evaluate on SST-2.", Citation: "p.3"},
			"model":   {Quote: "A logistic regression baseline.", Citation: "p.4"},
			"config":  {Quote: "Trained for 5 epochs.", Citation: "p.4"},
		},
	}
}

func TestBuildProducesFiveCells(t *testing.T) {
	plan := testPlan()
	dataset := fakeGenerator{imports: []string{"import pandas as pd"}, code: "df = load()", requirements: []string{"pandas==2.2.0"}}
	model := fakeGenerator{imports: []string{"import sklearn"}, code: "model.fit(X, y)", requirements: []string{"scikit-learn==1.5.0"}}

	doc := Build(plan, dataset, model, 7)
	require.Len(t, doc.Cells, 5)
	require.Equal(t, CellMarkdown, doc.Cells[0].Type)
	require.Equal(t, CellCode, doc.Cells[1].Type)
	require.Contains(t, doc.Cells[1].Source, "SEED = 7")
	require.Contains(t, doc.Cells[2].Source, "import pandas as pd")
	require.Contains(t, doc.Cells[2].Source, "import sklearn")
	require.Contains(t, doc.Cells[3].Source, "df = load()")
	require.Contains(t, doc.Cells[4].Source, "model.fit(X, y)")
}

func TestBuildAppendsProgressEventToEveryCodeCellInOrder(t *testing.T) {
	dataset := fakeGenerator{code: "df = load()"}
	model := fakeGenerator{code: "model.fit(X, y)"}
	doc := Build(testPlan(), dataset, model, 1)

	wantPercents := []int{25, 50, 75, 100}
	for i, want := range wantPercents {
		cell := doc.Cells[i+1]
		require.Equal(t, CellCode, cell.Type)
		require.Containsf(t, cell.Source, fmt.Sprintf(`log_event("progress", {"percent": %d})`, want), "cell %d", i+1)
	}
}

func TestBuildDefaultsSeedWhenZero(t *testing.T) {
	doc := Build(testPlan(), fakeGenerator{}, fakeGenerator{}, 0)
	require.Contains(t, doc.Cells[1].Source, "SEED = 42")
}

func TestBuildDedupesAndSortsImports(t *testing.T) {
	dataset := fakeGenerator{imports: []string{"import os", "import numpy as np"}}
	model := fakeGenerator{imports: []string{"import numpy as np", "import os"}}
	doc := Build(testPlan(), dataset, model, 1)
	require.Equal(t, "import numpy as np\nimport os\n"+`log_event("progress", {"percent": 50})`+"\n", doc.Cells[2].Source)
}

func TestTitleCellIncludesDatasetModelAndJustifications(t *testing.T) {
	title := titleCell(testPlan())
	require.Contains(t, title, "logreg-tfidf")
	require.Contains(t, title, "sst2")
	require.Contains(t, title, "accuracy")
	require.Contains(t, title, "We evaluate on SST-2.")
	require.Contains(t, title, "p.3")
}

func TestRequirementsIncludesBaseAndGeneratorSets(t *testing.T) {
	dataset := fakeGenerator{requirements: []string{"datasets==2.20.0"}}
	model := fakeGenerator{requirements: []string{"scikit-learn==1.5.0"}}
	reqs := Requirements(testPlan(), dataset, model)
	require.Contains(t, reqs, "datasets==2.20.0")
	require.Contains(t, reqs, "scikit-learn==1.5.0")
	for _, base := range []string{"numpy", "pandas", "scikit-learn"} {
		found := false
		for _, r := range reqs {
			if len(r) >= len(base) && r[:len(base)] == base {
				found = true
			}
		}
		require.Truef(t, found, "expected a base requirement pinned for %q, got %v", base, reqs)
	}
}

func TestFingerprintIsDeterministicRegardlessOfOrder(t *testing.T) {
	a := Fingerprint([]string{"numpy==2.1.0", "pandas==2.2.0"})
	b := Fingerprint([]string{"pandas==2.2.0", "numpy==2.1.0"})
	require.Equal(t, a, b)
	require.Len(t, a, 64) // hex-encoded sha256
}

func TestFingerprintChangesWithDifferentRequirements(t *testing.T) {
	a := Fingerprint([]string{"numpy==2.1.0"})
	b := Fingerprint([]string{"numpy==2.2.0"})
	require.NotEqual(t, a, b)
}

func TestToIpynbProducesValidNBFormat(t *testing.T) {
	doc := Build(testPlan(), fakeGenerator{code: "pass"}, fakeGenerator{code: "pass"}, 1)
	raw, err := doc.ToIpynb()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, float64(4), decoded["nbformat"])
	require.Equal(t, float64(5), decoded["nbformat_minor"])

	cells, ok := decoded["cells"].([]any)
	require.True(t, ok)
	require.Len(t, cells, 5)

	meta := decoded["metadata"].(map[string]any)
	kernel := meta["kernelspec"].(map[string]any)
	require.Equal(t, "python3", kernel["name"])
}

func TestSplitLinesKeepEndsDropsTrailingEmpty(t *testing.T) {
	lines := splitLinesKeepEnds("a\nb\n")
	require.Equal(t, []string{"a\n", "b\n"}, lines)
}

func TestSplitLinesKeepEndsHandlesNoTrailingNewline(t *testing.T) {
	lines := splitLinesKeepEnds("a\nb")
	require.Equal(t, []string{"a\n", "b"}, lines)
}
