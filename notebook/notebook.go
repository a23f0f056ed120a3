// Package notebook assembles the fixed five-cell notebook skeleton from
// generator fragments, computes the deterministic environment fingerprint,
// and statically validates generated code before it is ever persisted or
// executed.
package notebook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PIP-Team-3/paper2notebook/codegen"
	"github.com/PIP-Team-3/paper2notebook/entities"
)

// CellType mirrors the Jupyter notebook format's cell_type field.
type CellType string

const (
	CellMarkdown CellType = "markdown"
	CellCode     CellType = "code"
)

// Cell is a single notebook cell.
type Cell struct {
	Type   CellType `json:"cell_type"`
	Source string   `json:"source"`
}

// Document is the in-memory notebook representation. ToIpynb renders it to
// the on-disk Jupyter notebook JSON format.
type Document struct {
	Cells []Cell `json:"cells"`
}

const seedSetupTemplate = `import os
import json
import random
import numpy as np

SEED = %d
DATASET_CACHE_DIR = os.environ.get("DATASET_CACHE_DIR", "/tmp/p2n-dataset-cache")
DATASET_UPLOAD_PATH = os.environ.get("DATASET_UPLOAD_PATH", "")

random.seed(SEED)
np.random.seed(SEED)

os.environ["CUDA_VISIBLE_DEVICES"] = ""
os.environ["NO_GPU"] = "1"
if os.environ.get("NVIDIA_VISIBLE_DEVICES", "") not in ("", "none"):
    raise RuntimeError("GPU_REQUESTED: a GPU device is visible to this process")

_events_file = open("events.jsonl", "a")

def log_event(event_type, payload):
    _events_file.write(json.dumps({"type": event_type, "payload": payload}) + "\n")
    _events_file.flush()
`

// Build assembles the fixed cell skeleton: title/justifications markdown,
// setup+seeding, deduplicated+sorted imports, dataset generator body, model
// generator body. Each code cell's source ends with a call to the setup
// cell's log_event, reporting its own completion as a "progress" event
// (percent = cell index / total code cells) so the run-stream broker has a
// real per-cell progress signal to forward, not just the dataset/model
// domain events the generators themselves log.
func Build(plan *entities.PlanDocument, datasetGen codegen.DatasetGenerator, modelGen codegen.ModelGenerator, seed int) *Document {
	if seed == 0 {
		seed = 42
	}
	imports := dedupeSorted(append(datasetGen.Imports(plan), modelGen.Imports(plan)...))

	codeSources := []string{
		fmt.Sprintf(seedSetupTemplate, seed),
		strings.Join(imports, "\n") + "\n",
		datasetGen.Code(plan),
		modelGen.Code(plan),
	}

	cells := make([]Cell, 0, len(codeSources)+1)
	cells = append(cells, Cell{Type: CellMarkdown, Source: titleCell(plan)})
	for i, src := range codeSources {
		percent := (i + 1) * 100 / len(codeSources)
		cells = append(cells, Cell{Type: CellCode, Source: appendProgressEvent(src, percent)})
	}
	return &Document{Cells: cells}
}

// appendProgressEvent appends a log_event("progress", ...) call to the end
// of a code cell's source, so the executor's per-cell progress is recorded
// inside the same events.jsonl stream the generators' own domain events use.
func appendProgressEvent(source string, percent int) string {
	if source != "" && !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return source + fmt.Sprintf("log_event(\"progress\", {\"percent\": %d})\n", percent)
}

func titleCell(plan *entities.PlanDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Reproduction: %s\n\n", plan.Model.Name)
	fmt.Fprintf(&b, "Dataset: **%s** — Metric: **%s** (goal %.4g)\n\n", plan.Dataset.CanonicalName, plan.Metrics.Primary, plan.Metrics.GoalValue)
	fmt.Fprintln(&b, "## Justifications")
	for _, field := range []string{"dataset", "model", "config"} {
		if j, ok := plan.Justifications[field]; ok {
			fmt.Fprintf(&b, "- **%s**: \"%s\" (%s)\n", field, j.Quote, j.Citation)
		}
	}
	return b.String()
}

func dedupeSorted(lines []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Requirements returns the union of generator requirements plus the default
// base set, deduplicated and sorted.
func Requirements(plan *entities.PlanDocument, datasetGen codegen.DatasetGenerator, modelGen codegen.ModelGenerator) []string {
	all := append([]string{}, codegen.BaseRequirements()...)
	all = append(all, datasetGen.Requirements(plan)...)
	all = append(all, modelGen.Requirements(plan)...)
	return dedupeSorted(all)
}

// Fingerprint computes a deterministic hash of the sorted, newline-joined
// requirements, so identical requirement sets always produce identical
// environment fingerprints regardless of generator call order.
func Fingerprint(requirements []string) string {
	sorted := append([]string{}, requirements...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// ipynbCell is the on-disk Jupyter cell shape.
type ipynbCell struct {
	CellType       string   `json:"cell_type"`
	Source         []string `json:"source"`
	Metadata       struct{} `json:"metadata"`
	ExecutionCount *int     `json:"execution_count,omitempty"`
	Outputs        []any    `json:"outputs,omitempty"`
}

type ipynbDocument struct {
	Cells    []ipynbCell `json:"cells"`
	Metadata struct {
		KernelSpec struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
		} `json:"kernelspec"`
	} `json:"metadata"`
	NBFormat      int `json:"nbformat"`
	NBFormatMinor int `json:"nbformat_minor"`
}

// ToIpynb renders doc to the on-disk Jupyter notebook JSON format.
func (d *Document) ToIpynb() ([]byte, error) {
	out := ipynbDocument{NBFormat: 4, NBFormatMinor: 5}
	out.Metadata.KernelSpec.Name = "python3"
	out.Metadata.KernelSpec.DisplayName = "Python 3"
	for _, c := range d.Cells {
		cell := ipynbCell{CellType: string(c.Type), Source: splitLinesKeepEnds(c.Source)}
		if c.Type == CellCode {
			cell.Outputs = []any{}
		}
		out.Cells = append(out.Cells, cell)
	}
	return json.MarshalIndent(out, "", "  ")
}

func splitLinesKeepEnds(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
