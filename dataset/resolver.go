package dataset

import (
	"regexp"
	"strings"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

// Classification is the outcome of classifying a claim's dataset reference.
type Classification string

const (
	// ClassificationBlocked means name normalizes to a block-list member. Terminal.
	ClassificationBlocked Classification = "blocked"
	// ClassificationResolvedRegistry means name matched the registry by canonical name or alias.
	ClassificationResolvedRegistry Classification = "resolved_registry"
	// ClassificationResolvedUpload means name is not in the registry but the
	// paper's dataset upload filename stem normalizes to the same value.
	ClassificationResolvedUpload Classification = "resolved_upload"
	// ClassificationComplex is advisory: name looks like a joined/composite dataset.
	ClassificationComplex Classification = "complex"
	// ClassificationUnknown means none of the above matched.
	ClassificationUnknown Classification = "unknown"
)

// Result carries the classification plus any matched registry entry.
type Result struct {
	Classification Classification
	Entry          Entry // populated only for ClassificationResolvedRegistry
}

// complexJoiner is a conservative heuristic for composite/joined dataset
// names: multiple words joined by "+"/"&"/" and " or containing more than
// four space-separated tokens.
var complexJoiner = regexp.MustCompile(`(?i)\s(\+|&|and)\s`)

func looksComplex(name string) bool {
	if complexJoiner.MatchString(name) {
		return true
	}
	return len(strings.Fields(name)) > 4
}

// filenameStem strips the extension and path from a filename and normalizes it.
func filenameStem(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return Normalize(base)
}

// Classify is a pure classifier. It is used both as an LLM tool
// (dataset_resolver, Stage 1) and as part of the deterministic sanitizer, so
// it must never perform I/O or depend on mutable state.
func Classify(name string, reg *Registry, bl *BlockList, upload *entities.DatasetUpload) Result {
	if bl != nil && bl.Contains(name) {
		return Result{Classification: ClassificationBlocked}
	}
	if reg != nil {
		if entry, ok := reg.Lookup(name); ok {
			return Result{Classification: ClassificationResolvedRegistry, Entry: entry}
		}
	}
	if upload != nil && upload.Filename != "" {
		if filenameStem(upload.Filename) == Normalize(name) {
			return Result{Classification: ClassificationResolvedUpload}
		}
	}
	if looksComplex(name) {
		return Result{Classification: ClassificationComplex}
	}
	return Result{Classification: ClassificationUnknown}
}
