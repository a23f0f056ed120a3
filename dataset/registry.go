// Package dataset implements the in-process, immutable dataset catalog and
// the block-list of datasets refused for size or license reasons, plus name
// normalization shared by the registry lookup and the resolver classifier.
// The catalog loads once at process start from an embedded YAML fixture
// (gopkg.in/yaml.v3).
package dataset

import (
	_ "embed"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceKind identifies where a dataset is loaded from.
type SourceKind string

const (
	SourceSklearn     SourceKind = "sklearn"
	SourceTorchvision SourceKind = "torchvision"
	SourceHuggingface SourceKind = "huggingface"
	SourceSynthetic   SourceKind = "synthetic"
)

// Entry is a single immutable registry entry.
type Entry struct {
	CanonicalName string            `yaml:"canonical_name"`
	SourceKind    SourceKind        `yaml:"source_kind"`
	LoaderHints   map[string]string `yaml:"loader_hints"`
	Splits        []string          `yaml:"splits"`
	Aliases       []string          `yaml:"aliases"`
	SizeHintMB    int               `yaml:"size_hint_mb"`
	Description   string            `yaml:"description"`
}

// Registry is the immutable, in-process dataset catalog. Zero value is not
// usable; construct with New or LoadEmbedded.
type Registry struct {
	entries        []Entry
	byCanonical    map[string]int // normalized canonical name -> index
	byAlias        map[string]int // normalized alias -> index
}

// BlockList is the immutable set of dataset names refused as too large or
// license-encumbered.
type BlockList struct {
	normalized map[string]bool
	original   []string
}

//go:embed fixtures/registry.yaml
var embeddedRegistryYAML []byte

//go:embed fixtures/blocklist.yaml
var embeddedBlockListYAML []byte

// Normalize lower-cases name, strips all non-alphanumeric characters, and
// collapses whitespace, so registry lookups and block-list checks compare
// like with like.
var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func Normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	return nonAlnum.ReplaceAllString(lower, "")
}

// New builds a Registry from an explicit entry set (used by tests).
func New(entries []Entry) *Registry {
	r := &Registry{
		entries:     entries,
		byCanonical: make(map[string]int, len(entries)),
		byAlias:     make(map[string]int),
	}
	for i, e := range entries {
		r.byCanonical[Normalize(e.CanonicalName)] = i
		for _, a := range e.Aliases {
			r.byAlias[Normalize(a)] = i
		}
	}
	return r
}

// LoadEmbedded builds the default Registry from the embedded fixture.
func LoadEmbedded() (*Registry, error) {
	var doc struct {
		Datasets []Entry `yaml:"datasets"`
	}
	if err := yaml.Unmarshal(embeddedRegistryYAML, &doc); err != nil {
		return nil, err
	}
	return New(doc.Datasets), nil
}

// Lookup resolves name against canonical names and aliases (both
// normalized). Normalization is idempotent: Lookup(Normalize(x)) ==
// Lookup(x).
func (r *Registry) Lookup(name string) (Entry, bool) {
	n := Normalize(name)
	if i, ok := r.byCanonical[n]; ok {
		return r.entries[i], true
	}
	if i, ok := r.byAlias[n]; ok {
		return r.entries[i], true
	}
	return Entry{}, false
}

// All returns every registry entry, for introspection/tooling.
func (r *Registry) All() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// NewBlockList builds a BlockList from an explicit name set.
func NewBlockList(names []string) *BlockList {
	bl := &BlockList{normalized: make(map[string]bool, len(names)), original: append([]string(nil), names...)}
	for _, n := range names {
		bl.normalized[Normalize(n)] = true
	}
	return bl
}

// LoadEmbeddedBlockList builds the default BlockList from the embedded fixture.
func LoadEmbeddedBlockList() (*BlockList, error) {
	var doc struct {
		Blocked []string `yaml:"blocked"`
	}
	if err := yaml.Unmarshal(embeddedBlockListYAML, &doc); err != nil {
		return nil, err
	}
	return NewBlockList(doc.Blocked), nil
}

// Contains reports whether name (in any casing/punctuation) normalizes to a
// block-list member.
func (bl *BlockList) Contains(name string) bool {
	return bl.normalized[Normalize(name)]
}

// Names returns the original (non-normalized) block-list entries.
func (bl *BlockList) Names() []string {
	return append([]string(nil), bl.original...)
}
