// Package sandbox runs a materialized notebook to completion in an isolated
// subprocess, bridging the notebook's events.jsonl to the run-stream broker
// and persisting the metrics, event log, and captured output artifacts. A
// single run-to-completion `jupyter nbconvert --execute` invocation, managed
// with CommandContext, pipe plumbing, and kill-on-timeout.
package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/PIP-Team-3/paper2notebook/entities"
	"github.com/PIP-Team-3/paper2notebook/p2nerrors"
	"github.com/PIP-Team-3/paper2notebook/runstream"
)

// MaxCellTimeout bounds the per-run wall clock regardless of a plan's
// requested budget: the effective timeout is min(budget_minutes*60, 25*60)
// seconds.
const MaxCellTimeout = 25 * time.Minute

const (
	maxLogBytes    = 2 * 1024 * 1024
	maxEventsBytes = 5 * 1024 * 1024
	truncationSentinel = "\n...[truncated]...\n"
)

// Options configures a single Execute call.
type Options struct {
	// WorkDir is a clean, per-run temporary directory the notebook and its
	// artifacts are written into. The caller owns its lifecycle (creation
	// and eventual removal).
	WorkDir string
	// NotebookPath is the on-disk path to the materialized .ipynb file.
	NotebookPath string
	// BudgetMinutes is the plan's requested budget; clamped to MaxCellTimeout.
	BudgetMinutes int
	// PythonExecutable defaults to "jupyter" (nbconvert subcommand) when empty.
	PythonExecutable string
	// DatasetUploadPath is injected as DATASET_UPLOAD_PATH into the child
	// environment for the tabular dataset generator.
	DatasetUploadPath string
}

// Result summarizes a completed (successful or failed) execution.
type Result struct {
	Status      entities.Status
	ErrorCode   string
	ErrorMsg    string
	DurationSec float64

	MetricsJSON []byte // nil if absent (e.g. failed before evaluation)
	EventsJSONL []byte
	LogsText    []byte
}

func timeoutFor(budgetMinutes int) time.Duration {
	requested := time.Duration(budgetMinutes) * time.Minute
	if requested <= 0 || requested > MaxCellTimeout {
		return MaxCellTimeout
	}
	return requested
}

// Execute runs the notebook at opts.NotebookPath to completion, tailing its
// events.jsonl and forwarding new lines to broker under runID, then returns
// the captured artifacts. The subprocess runs with GPU device visibility
// stripped (CUDA_VISIBLE_DEVICES="", NVIDIA_VISIBLE_DEVICES="none"); the
// notebook's own setup cell raises GPU_REQUESTED if a device is visible
// regardless, as defense in depth against an executor-level scrubbing gap.
func Execute(ctx context.Context, broker *runstream.Broker, runID string, opts Options) (*Result, error) {
	timeout := timeoutFor(opts.BudgetMinutes)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eventsPath := filepath.Join(opts.WorkDir, "events.jsonl")
	if err := os.WriteFile(eventsPath, nil, 0o644); err != nil {
		return nil, p2nerrors.Wrap(p2nerrors.KindExecution, p2nerrors.CodeCellFailed, err)
	}

	pythonExe := opts.PythonExecutable
	if pythonExe == "" {
		pythonExe = "jupyter"
	}

	outPath := filepath.Join(opts.WorkDir, "executed.ipynb")
	cmd := exec.CommandContext(runCtx, pythonExe,
		"nbconvert",
		"--to", "notebook",
		"--execute",
		"--output", outPath,
		"--ExecutePreprocessor.timeout="+fmt.Sprint(int(timeout.Seconds())),
		opts.NotebookPath,
	)
	cmd.Dir = opts.WorkDir
	cmd.Env = scrubbedEnv(opts)

	var logBuf bytes.Buffer
	cmd.Stdout = &logBuf
	cmd.Stderr = &logBuf

	tailDone := make(chan struct{})
	tailStop := make(chan struct{})
	go tailEvents(context.WithoutCancel(ctx), tailStop, broker, runID, eventsPath, tailDone)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	close(tailStop)
	<-tailDone
	broker.Close(runID)

	result := &Result{DurationSec: duration.Seconds()}
	result.LogsText = truncate(logBuf.Bytes(), maxLogBytes)

	eventsData, _ := os.ReadFile(eventsPath)
	result.EventsJSONL = truncate(eventsData, maxEventsBytes)

	if gpuRequested(eventsData, logBuf.Bytes()) {
		result.Status = entities.StatusFailed
		result.ErrorCode = p2nerrors.CodeGPURequested
		result.ErrorMsg = "a GPU device was visible to the executed notebook"
		return result, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.Status = entities.StatusFailed
		result.ErrorCode = p2nerrors.CodeRunTimeout
		result.ErrorMsg = fmt.Sprintf("execution exceeded %s", timeout)
		return result, nil
	}

	if runErr != nil {
		result.Status = entities.StatusFailed
		result.ErrorCode = p2nerrors.CodeCellFailed
		result.ErrorMsg = runErr.Error()
		return result, nil
	}

	metricsPath := filepath.Join(opts.WorkDir, "metrics.json")
	metricsData, err := os.ReadFile(metricsPath)
	if err != nil {
		result.Status = entities.StatusFailed
		result.ErrorCode = p2nerrors.CodeMetricsMissing
		result.ErrorMsg = "metrics.json was not produced"
		return result, nil
	}
	result.MetricsJSON = metricsData
	result.Status = entities.StatusSucceeded
	return result, nil
}

// scrubbedEnv builds the child process environment with GPU visibility
// cleared and the dataset upload path (if any) injected for the tabular
// generator.
func scrubbedEnv(opts Options) []string {
	env := os.Environ()
	filtered := env[:0]
	for _, kv := range env {
		if len(kv) >= len("CUDA_VISIBLE_DEVICES=") && kv[:len("CUDA_VISIBLE_DEVICES=")] == "CUDA_VISIBLE_DEVICES=" {
			continue
		}
		if len(kv) >= len("NVIDIA_VISIBLE_DEVICES=") && kv[:len("NVIDIA_VISIBLE_DEVICES=")] == "NVIDIA_VISIBLE_DEVICES=" {
			continue
		}
		filtered = append(filtered, kv)
	}
	filtered = append(filtered,
		"CUDA_VISIBLE_DEVICES=",
		"NVIDIA_VISIBLE_DEVICES=none",
		"DATASET_CACHE_DIR="+filepath.Join(opts.WorkDir, "dataset-cache"),
	)
	if opts.DatasetUploadPath != "" {
		filtered = append(filtered, "DATASET_UPLOAD_PATH="+opts.DatasetUploadPath)
	}
	return filtered
}

func gpuRequested(eventsData, logData []byte) bool {
	return bytes.Contains(logData, []byte("GPU_REQUESTED")) || bytes.Contains(eventsData, []byte("GPU_REQUESTED"))
}

func truncate(data []byte, max int) []byte {
	if len(data) <= max {
		return data
	}
	out := make([]byte, 0, max+len(truncationSentinel))
	out = append(out, data[:max]...)
	out = append(out, []byte(truncationSentinel)...)
	return out
}

// tailEvents polls eventsPath for new lines and publishes each as a
// runstream.Event, terminating after one final read once stop is closed
// (the run finished or timed out). A fixed polling interval is simple and sufficient given
// cell-level, not sub-second, event granularity.
func tailEvents(ctx context.Context, stop <-chan struct{}, broker *runstream.Broker, runID, path string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var offset int64
	readNew := func() {
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			offset += int64(len(line)) + 1
			if len(line) == 0 {
				continue
			}
			var rec struct {
				Type    string         `json:"type"`
				Payload map[string]any `json:"payload"`
			}
			if json.Unmarshal(line, &rec) != nil {
				continue
			}
			_ = broker.Publish(ctx, runID, runstream.Event{Type: rec.Type, Payload: rec.Payload})
		}
	}

	for {
		select {
		case <-stop:
			readNew()
			return
		case <-ticker.C:
			readNew()
		}
	}
}
