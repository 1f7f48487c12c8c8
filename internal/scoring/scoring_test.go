package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fleetctl/internal/model"
	"fleetctl/internal/scoring"
)

func TestSystemScoreCleanRun(t *testing.T) {
	s := scoring.SystemScore(scoring.SystemScoreInputs{
		RequirementPassRate: 1.0,
		TestPassRate:        1.0,
		ContractPassRate:    1.0,
		Violations:          0,
		LOC:                 1000,
		HealthCheckRate:     1.0,
		ArtifactsPresent:    2,
		ArtifactsRequired:   2,
	})
	require.InDelta(t, 100.0, s.Total, 1e-9)
}

func TestSystemScoreClampedToRange(t *testing.T) {
	s := scoring.SystemScore(scoring.SystemScoreInputs{
		RequirementPassRate: 2.0, // out-of-range input must clamp
		TestPassRate:        -1,
		ContractPassRate:    1,
		Violations:          1000,
		LOC:                 100,
		HealthCheckRate:     1,
		ArtifactsRequired:   0,
	})
	require.GreaterOrEqual(t, s.Total, 0.0)
	require.LessOrEqual(t, s.Total, 100.0)
	sum := s.FunctionalCompleteness + s.TestHealth + s.ContractCompliance + s.CodeQuality + s.DockerHealth + s.Documentation
	require.InDelta(t, sum, s.Total, 1e-9, "total must equal sum of category scores when not separately clamped")
}

func TestSystemScoreNoArtifactsRequiredTreatedAsSatisfied(t *testing.T) {
	s := scoring.SystemScore(scoring.SystemScoreInputs{ArtifactsRequired: 0})
	require.Equal(t, 5.0, s.Documentation)
}

func TestIntegrationScoreQuarters(t *testing.T) {
	i := scoring.IntegrationScoreOf(scoring.IntegrationScoreInputs{
		ToolsOK:              20,
		FlowsPassing:         10,
		FlowsTotal:           10,
		CrossBuildViolations: 0,
		PhasesComplete:       8,
		PhasesTotal:          8,
	})
	require.InDelta(t, 100.0, i.Total, 1e-9)
}

func TestIntegrationScoreZeroTotalsTreatedAsComplete(t *testing.T) {
	i := scoring.IntegrationScoreOf(scoring.IntegrationScoreInputs{FlowsTotal: 0, PhasesTotal: 0})
	require.Equal(t, 25.0, i.DataFlowIntegrity)
	require.Equal(t, 25.0, i.PipelineCompletion)
}

func TestAggregateFormula(t *testing.T) {
	agg := scoring.Aggregate([]float64{100, 100, 100}, 100)
	require.InDelta(t, 100.0, agg, 1e-9)

	agg2 := scoring.Aggregate([]float64{80, 60, 40}, 50)
	want := 0.30*80 + 0.25*60 + 0.25*40 + 0.20*50
	require.InDelta(t, want, agg2, 1e-9)
}

func TestAggregateClampsToRange(t *testing.T) {
	agg := scoring.Aggregate([]float64{1000, 1000, 1000}, 1000)
	require.Equal(t, 100.0, agg)
}

func TestTrafficLightBoundaries(t *testing.T) {
	require.Equal(t, model.Green, scoring.TrafficLightOf(80))
	require.Equal(t, model.Yellow, scoring.TrafficLightOf(50))
	require.Equal(t, model.Yellow, scoring.TrafficLightOf(79.9))
	require.Equal(t, model.Red, scoring.TrafficLightOf(49.9))
}

func TestGoodEnoughCleanRunPasses(t *testing.T) {
	result := scoring.GoodEnough(scoring.GateInputs{
		SystemScores:        []float64{90, 85},
		IntegrationScore:    90,
		AggregateScore:      88,
		RemainingP0:         0,
		RemainingP1:         0,
		TestsPassed:         10,
		TestsTotal:          10,
		MCPToolsOK:          10,
		MCPToolsTotal:       10,
		FixConvergenceRatio: 1.0,
	})
	require.True(t, result.Passed)
	require.Empty(t, result.Failures)
}

func TestGoodEnoughZeroEvidenceTreatedAsPassing(t *testing.T) {
	result := scoring.GoodEnough(scoring.GateInputs{
		SystemScores:        []float64{90, 85},
		IntegrationScore:    90,
		AggregateScore:      88,
		RemainingP0:         0,
		RemainingP1:         0,
		TestsPassed:         0,
		TestsTotal:          0,
		MCPToolsOK:          0,
		MCPToolsTotal:       0,
		FixConvergenceRatio: 1.0,
	})
	require.True(t, result.Passed, "zero total tests/tools must be treated as no evidence, not failure")
}

func TestGoodEnoughCollectsEveryFailure(t *testing.T) {
	result := scoring.GoodEnough(scoring.GateInputs{
		SystemScores:        []float64{10, 20},
		IntegrationScore:    10,
		AggregateScore:      10,
		RemainingP0:         2,
		RemainingP1:         10,
		TestsPassed:         1,
		TestsTotal:          10,
		MCPToolsOK:          1,
		MCPToolsTotal:       10,
		FixConvergenceRatio: 0.1,
	})
	require.False(t, result.Passed)
	require.GreaterOrEqual(t, len(result.Failures), 7)
}
