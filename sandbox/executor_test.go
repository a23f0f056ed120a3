package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PIP-Team-3/paper2notebook/runstream"
	"github.com/PIP-Team-3/paper2notebook/store/memory"
)

func TestTimeoutForClampsToMaxCellTimeout(t *testing.T) {
	require.Equal(t, MaxCellTimeout, timeoutFor(60))
}

func TestTimeoutForHonorsBudgetUnderCeiling(t *testing.T) {
	require.Equal(t, 10*time.Minute, timeoutFor(10))
}

func TestTimeoutForFallsBackToMaxOnZeroBudget(t *testing.T) {
	require.Equal(t, MaxCellTimeout, timeoutFor(0))
}

func TestScrubbedEnvStripsAndOverridesGPUVars(t *testing.T) {
	t.Setenv("CUDA_VISIBLE_DEVICES", "0,1")
	t.Setenv("NVIDIA_VISIBLE_DEVICES", "all")

	env := scrubbedEnv(Options{WorkDir: "/tmp/work"})

	seenCuda, seenNvidia := 0, 0
	for _, kv := range env {
		switch {
		case kv == "CUDA_VISIBLE_DEVICES=":
			seenCuda++
		case kv == "NVIDIA_VISIBLE_DEVICES=none":
			seenNvidia++
		case kv == "CUDA_VISIBLE_DEVICES=0,1", kv == "NVIDIA_VISIBLE_DEVICES=all":
			t.Fatalf("original GPU env var leaked through: %s", kv)
		}
	}
	require.Equal(t, 1, seenCuda)
	require.Equal(t, 1, seenNvidia)
}

func TestScrubbedEnvInjectsDatasetUploadPathWhenSet(t *testing.T) {
	env := scrubbedEnv(Options{WorkDir: "/tmp/work", DatasetUploadPath: "/tmp/work/data.csv"})
	require.Contains(t, env, "DATASET_UPLOAD_PATH=/tmp/work/data.csv")
}

func TestScrubbedEnvOmitsDatasetUploadPathWhenUnset(t *testing.T) {
	env := scrubbedEnv(Options{WorkDir: "/tmp/work"})
	for _, kv := range env {
		require.NotContains(t, kv, "DATASET_UPLOAD_PATH=")
	}
}

func TestGpuRequestedDetectsMarkerInLogsOrEvents(t *testing.T) {
	require.True(t, gpuRequested(nil, []byte("RuntimeError: GPU_REQUESTED: a GPU device is visible")))
	require.True(t, gpuRequested([]byte(`{"type":"error","payload":{"msg":"GPU_REQUESTED"}}`), nil))
	require.False(t, gpuRequested([]byte("normal"), []byte("normal")))
}

func TestTruncateLeavesShortDataUntouched(t *testing.T) {
	data := []byte("short")
	require.Equal(t, data, truncate(data, 100))
}

func TestTruncateAppendsSentinelWhenOverLimit(t *testing.T) {
	data := []byte("0123456789")
	out := truncate(data, 4)
	require.Equal(t, "0123"+truncationSentinel, string(out))
}

func TestTailEventsPublishesNewLinesUntilStopped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"dataset_loaded","payload":{}}`+"\n"), 0o644))

	broker := runstream.New(memory.New().Events())
	ctx := context.Background()
	sub, err := broker.Subscribe(ctx, "run1")
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})
	go tailEvents(ctx, stop, broker, "run1", path, done)

	select {
	case evt := <-sub.Events:
		require.Equal(t, "dataset_loaded", evt.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tailed event")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tailEvents did not exit after stop was closed")
	}
}
