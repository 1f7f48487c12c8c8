// Package builder implements C2: the bounded-concurrency fan-out of
// per-service code-generation subprocesses, with directory isolation and
// result aggregation, per spec §4.2.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"fleetctl/internal/logging"
	"fleetctl/internal/model"
)

// Command describes one subprocess invocation, the opaque-builder contract
// of spec §6: a working directory, the configuration document the builder
// reads, and a timeout.
type Command struct {
	Binary           string
	Arguments        []string
	WorkingDirectory string
	Timeout          time.Duration
	Environment      []string
}

// StateFileName is the well-known path (relative to output_dir) a builder
// must write its summary to, per spec §6.
const StateFileName = "builder_state.json"

// builderState mirrors the builder-emitted state file's shape: unknown
// fields are tolerated (forward-compatible decode per spec §3), known
// fields are validated.
type builderState struct {
	Summary struct {
		Success bool `json:"success"`
	} `json:"summary"`
	TotalCost        float64  `json:"total_cost"`
	TestPassed       int      `json:"test_passed"`
	TestTotal        int      `json:"test_total"`
	ConvergenceRatio float64  `json:"convergence_ratio"`
	Artifacts        []string `json:"artifacts"`
}

// SubprocessDispatcher invokes a builder as an opaque subprocess and parses
// its emitted state file, grounded on the teacher's SafeExecutor pattern:
// os/exec.CommandContext with a per-call timeout derived from the command.
type SubprocessDispatcher struct{}

// Dispatch runs cmd to completion (or until its context/timeout fires) and
// parses the resulting state file from outputDir/StateFileName into a
// BuilderResult. A builder is success=true iff the state file declares
// success AND the output directory contains at least one generated source
// artifact (spec §4.2 step 4).
func (SubprocessDispatcher) Dispatch(ctx context.Context, serviceID string, cmd Command) model.BuilderResult {
	log := logging.Get(logging.Builder)

	result := model.BuilderResult{ServiceID: serviceID, OutputDir: cmd.WorkingDirectory}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, cmd.Binary, cmd.Arguments...)
	c.Dir = cmd.WorkingDirectory
	c.Env = cmd.Environment

	output, err := c.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			log.Warnw("builder timed out", "service_id", serviceID, "timeout", timeout)
			result.Error = fmt.Sprintf("builder timed out after %s", timeout)
		} else {
			log.Errorw("builder process failed", "service_id", serviceID, "err", err)
			result.Error = fmt.Sprintf("builder process failed: %v, output: %s", err, truncate(output, 2000))
		}
		return result
	}

	return parseState(cmd.WorkingDirectory, serviceID, result)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}

func parseState(outputDir, serviceID string, result model.BuilderResult) model.BuilderResult {
	path := filepath.Join(outputDir, StateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = fmt.Sprintf("missing builder state file: %v", err)
		return result
	}

	var state builderState
	if err := json.Unmarshal(data, &state); err != nil {
		result.Error = fmt.Sprintf("unparseable builder state file: %v", err)
		return result
	}

	result.Cost = state.TotalCost
	result.TestPassed = state.TestPassed
	result.TestTotal = state.TestTotal
	result.ConvergenceRatio = state.ConvergenceRatio
	result.Artifacts = state.Artifacts

	hasSourceArtifact := hasGeneratedSource(outputDir)
	result.Success = state.Summary.Success && hasSourceArtifact
	if !result.Success && result.Error == "" {
		if !state.Summary.Success {
			result.Error = "builder reported failure in state file"
		} else {
			result.Error = "output directory contains no generated source artifact"
		}
	}
	return result
}

// hasGeneratedSource reports whether outputDir contains at least one
// regular file besides the builder's own state file.
func hasGeneratedSource(outputDir string) bool {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if e.Name() == StateFileName {
			continue
		}
		return true
	}
	return false
}
