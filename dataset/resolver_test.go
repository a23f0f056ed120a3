package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/entities"
)

func TestClassifyBlockedTakesPriorityOverRegistry(t *testing.T) {
	reg := New([]Entry{{CanonicalName: "imagenet-21k"}})
	bl := NewBlockList([]string{"imagenet-21k"})
	result := Classify("ImageNet-21k", reg, bl, nil)
	require.Equal(t, ClassificationBlocked, result.Classification)
}

func TestClassifyResolvesAgainstRegistry(t *testing.T) {
	reg := New([]Entry{{CanonicalName: "sst2", SourceKind: SourceHuggingface}})
	result := Classify("sst2", reg, nil, nil)
	require.Equal(t, ClassificationResolvedRegistry, result.Classification)
	require.Equal(t, SourceHuggingface, result.Entry.SourceKind)
}

func TestClassifyResolvesAgainstUploadFilenameStem(t *testing.T) {
	upload := &entities.DatasetUpload{Filename: "my-dataset.csv"}
	result := Classify("My Dataset", nil, nil, upload)
	require.Equal(t, ClassificationResolvedUpload, result.Classification)
}

func TestClassifyFlagsComplexJoinedNames(t *testing.T) {
	result := Classify("SQuAD and TriviaQA", nil, nil, nil)
	require.Equal(t, ClassificationComplex, result.Classification)
}

func TestClassifyFlagsLongMultiWordNamesAsComplex(t *testing.T) {
	result := Classify("one two three four five", nil, nil, nil)
	require.Equal(t, ClassificationComplex, result.Classification)
}

func TestClassifyFallsBackToUnknown(t *testing.T) {
	result := Classify("some obscure corpus", nil, nil, nil)
	require.Equal(t, ClassificationUnknown, result.Classification)
}
