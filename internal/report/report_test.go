package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetctl/internal/config"
	"fleetctl/internal/model"
	"fleetctl/internal/scoring"
)

func sampleState() *model.PipelineState {
	state := model.NewPipelineState("run-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	state.ServiceDescriptors["svc-b"] = model.ServiceDescriptor{ServiceID: "svc-b", Domain: "billing"}
	state.ServiceDescriptors["svc-a"] = model.ServiceDescriptor{ServiceID: "svc-a", Domain: "auth"}
	state.Scores["svc-a"] = model.SystemScore{Total: 91.5}
	state.Scores["svc-b"] = model.SystemScore{Total: 42.0}
	state.BuilderResults["svc-a"] = model.BuilderResult{Success: true}
	state.Integration = model.IntegrationScore{Total: 70}
	state.AggregateScore = 75.4
	state.TrafficLight = model.Yellow
	state.TotalCost = 12.5
	state.PhaseCosts[model.PhaseBuildersRun] = 8
	state.PhaseCosts[model.PhaseDecompose] = 4.5
	state.Findings = []model.Finding{
		{FindingID: "f-2", Priority: model.P0, System: "svc-b", Component: "api", Evidence: "crash", Recommendation: "fix nil check", Resolution: model.Open},
		{FindingID: "f-1", Priority: model.P1, System: "svc-a", Component: "db", Evidence: "slow query", Resolution: model.Open},
		{FindingID: "f-3", Priority: model.P2, System: "svc-a", Component: "lint", Evidence: "unused var", Resolution: model.Open},
		{FindingID: "f-0", Priority: model.P0, System: "svc-a", Component: "auth", Resolution: model.Fixed, FixPassNumber: 1, FixVerification: "tests_pass"},
	}
	state.FixPasses = []model.FixPassResult{
		{PassNumber: 1, Status: model.FixPassCompleted, Generated: 3, Applied: 3, Verified: 2, RegressionCount: 0, StopReason: model.ReasonContinue, Metrics: model.FixPassMetrics{FixedCount: 2, FixEffectiveness: 0.66, ConvergenceScore: 0.5}},
	}
	return state
}

func TestBuildDataSortsDeterministically(t *testing.T) {
	state := sampleState()
	data := BuildData(state, config.Default(), scoring.GateResult{Passed: false, Failures: []string{"test pass rate 0.50 below 0.85"}})

	require.Equal(t, []string{"svc-a", "svc-b"}, []string{data.Systems[0].ServiceID, data.Systems[1].ServiceID})
	require.Equal(t, model.PhaseDecompose, data.PhaseCosts[0].Phase)
	require.Equal(t, model.PhaseBuildersRun, data.PhaseCosts[1].Phase)

	require.Len(t, data.OpenP0, 1)
	require.Equal(t, "f-2", data.OpenP0[0].FindingID)
	require.Len(t, data.OpenP1, 1)
	require.Len(t, data.OpenP2P3, 1)
	require.Len(t, data.Resolved, 1)
	require.Equal(t, "f-0", data.Resolved[0].FindingID)
	require.False(t, data.NoViolations)
}

func TestGenerateProducesFixedSections(t *testing.T) {
	gen := NewGenerator()
	data := BuildData(sampleState(), config.Default(), scoring.GateResult{Passed: true})

	rendered, err := gen.Generate(data)
	require.NoError(t, err)

	for _, section := range []string{
		"# Super Team Audit Report",
		"## Executive Summary",
		"## Methodology",
		"## Per-System Assessment",
		"## Integration Assessment",
		"## Fix Pass History",
		"## Gap Analysis",
		"## Appendices",
	} {
		require.Contains(t, rendered, section)
	}
	require.Contains(t, rendered, "svc-a")
	require.Contains(t, rendered, "f-2")
}

func TestWriteToFileCreatesDirAndFile(t *testing.T) {
	gen := NewGenerator()
	data := BuildData(sampleState(), config.Default(), scoring.GateResult{Passed: true})

	dir := filepath.Join(t.TempDir(), "nested", "output")
	path, err := gen.WriteToFile(dir, data)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, FileName), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "Run `run-1`")
}

func TestGenerateHandlesEmptyCollections(t *testing.T) {
	gen := NewGenerator()
	state := model.NewPipelineState("empty-run", time.Now())
	data := BuildData(state, config.Default(), scoring.GateResult{Passed: true})

	rendered, err := gen.Generate(data)
	require.NoError(t, err)
	require.True(t, data.NoViolations)
	require.Contains(t, rendered, "(no services)")
	require.Contains(t, rendered, "(no fix passes ran)")
	require.Contains(t, rendered, "(no cost recorded)")
	require.Contains(t, rendered, "No violations found.")
}
