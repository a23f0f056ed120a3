package notebook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedCells(t *testing.T) {
	doc := &Document{Cells: []Cell{
		{Type: CellMarkdown, Source: "# title (unbalanced is fine in markdown"},
		{Type: CellCode, Source: "x = [1, 2, 3]\nprint(x)\n"},
	}}
	require.Empty(t, Validate(doc))
}

func TestValidateCatchesUnbalancedBrackets(t *testing.T) {
	doc := &Document{Cells: []Cell{
		{Type: CellCode, Source: "x = [1, 2, 3\n"},
	}}
	errs := Validate(doc)
	require.Len(t, errs, 1)
	require.Equal(t, 0, errs[0].CellIndex)
	require.Contains(t, errs[0].Message, "unbalanced")
}

func TestValidateIgnoresBracketsInsideStrings(t *testing.T) {
	doc := &Document{Cells: []Cell{
		{Type: CellCode, Source: `label = "[unopened"` + "\n"},
	}}
	require.Empty(t, Validate(doc))
}

func TestValidateCatchesForbiddenCountVectorizerRandomState(t *testing.T) {
	doc := &Document{Cells: []Cell{
		{Type: CellCode, Source: "vec = CountVectorizer(random_state=42)\n"},
	}}
	errs := Validate(doc)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "CountVectorizer")
}

func TestValidateCatchesForbiddenTrainTestSplitNoShuffle(t *testing.T) {
	doc := &Document{Cells: []Cell{
		{Type: CellCode, Source: "train_test_split(X, y, shuffle=False)\n"},
	}}
	errs := Validate(doc)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Message, "train_test_split")
}

func TestValidateSkipsMarkdownCellsForForbiddenArgs(t *testing.T) {
	doc := &Document{Cells: []Cell{
		{Type: CellMarkdown, Source: "CountVectorizer(random_state=42)"},
	}}
	require.Empty(t, Validate(doc))
}

func TestValidateAllowsUnrelatedCallsWithSameKeyword(t *testing.T) {
	doc := &Document{Cells: []Cell{
		{Type: CellCode, Source: "TfidfVectorizer(random_state=42)\n"},
	}}
	require.Empty(t, Validate(doc))
}
