// Package scoring implements C4: the weighted per-system score, the
// integration score, the aggregate rollup, traffic-light classification,
// and the good-enough gate predicate, per spec §4.4.
package scoring

import (
	"fmt"

	"fleetctl/internal/model"
)

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// SystemScoreInputs are the raw rates/counters a per-system score is
// computed from, per spec §4.4's table.
type SystemScoreInputs struct {
	RequirementPassRate float64 // clamped to [0,1]
	TestPassRate        float64 // clamped to [0,1]; 1 when there are zero tests (spec §8)
	ContractPassRate    float64 // clamped to [0,1]
	Violations          int
	LOC                 int
	HealthCheckRate     float64 // clamped to [0,1]
	ArtifactsPresent    int
	ArtifactsRequired   int
}

// SystemScore computes the six weighted categories and their total, clamped
// to [0,100].
func SystemScore(in SystemScoreInputs) model.SystemScore {
	functional := clamp01(in.RequirementPassRate) * 30
	testHealth := clamp01(in.TestPassRate) * 20
	contract := clamp01(in.ContractPassRate) * 20

	density := 0.0
	if in.LOC > 0 {
		density = float64(in.Violations) / (float64(in.LOC) / 1000.0)
	}
	codeQuality := 15 - density*1.5
	if codeQuality < 0 {
		codeQuality = 0
	}

	docker := clamp01(in.HealthCheckRate) * 10

	documentation := 0.0
	if in.ArtifactsRequired > 0 {
		present := in.ArtifactsPresent
		if present > in.ArtifactsRequired {
			present = in.ArtifactsRequired
		}
		documentation = float64(present) / float64(in.ArtifactsRequired) * 5
	} else {
		// No evidence required: treat as fully satisfied, mirroring the
		// zero-total "treated as 1" boundary rule in spec §8.
		documentation = 5
	}

	total := functional + testHealth + contract + codeQuality + docker + documentation
	total = clamp(total, 0, 100)

	return model.SystemScore{
		FunctionalCompleteness: functional,
		TestHealth:             testHealth,
		ContractCompliance:     contract,
		CodeQuality:            codeQuality,
		DockerHealth:           docker,
		Documentation:          documentation,
		Total:                  total,
	}
}

// IntegrationScoreInputs are the raw counters the integration score is
// computed from, per spec §4.4.
type IntegrationScoreInputs struct {
	ToolsOK              int
	FlowsPassing         int
	FlowsTotal           int
	CrossBuildViolations int
	PhasesComplete       int
	PhasesTotal          int
}

// IntegrationScoreOf computes the four equal-quarter integration score.
func IntegrationScoreOf(in IntegrationScoreInputs) model.IntegrationScore {
	toolsOK := in.ToolsOK
	if toolsOK > 20 {
		toolsOK = 20
	}
	mcpConnectivity := float64(toolsOK) / 20.0 * 25

	dataFlow := 0.0
	if in.FlowsTotal > 0 {
		passing := in.FlowsPassing
		if passing > in.FlowsTotal {
			passing = in.FlowsTotal
		}
		dataFlow = float64(passing) / float64(in.FlowsTotal) * 25
	} else {
		dataFlow = 25
	}

	contractFidelity := 25 - float64(in.CrossBuildViolations)*2.5
	if contractFidelity < 0 {
		contractFidelity = 0
	}

	pipelineCompletion := 0.0
	if in.PhasesTotal > 0 {
		complete := in.PhasesComplete
		if complete > in.PhasesTotal {
			complete = in.PhasesTotal
		}
		pipelineCompletion = float64(complete) / float64(in.PhasesTotal) * 25
	} else {
		pipelineCompletion = 25
	}

	total := clamp(mcpConnectivity+dataFlow+contractFidelity+pipelineCompletion, 0, 100)

	return model.IntegrationScore{
		MCPConnectivity:    mcpConnectivity,
		DataFlowIntegrity:  dataFlow,
		ContractFidelity:   contractFidelity,
		PipelineCompletion: pipelineCompletion,
		Total:              total,
	}
}

// Aggregate combines up to three per-system (build) scores and the
// integration score into the final weighted aggregate, per spec §4.4:
// 0.30*b1 + 0.25*b2 + 0.25*b3 + 0.20*integration, clamped to [0,100].
//
// Fewer than three system scores is valid: missing slots contribute 0, the
// same as a system that scored 0 would.
func Aggregate(systemScores []float64, integration float64) float64 {
	weights := []float64{0.30, 0.25, 0.25}
	total := 0.0
	for i, w := range weights {
		if i < len(systemScores) {
			total += w * systemScores[i]
		}
	}
	total += 0.20 * integration
	return clamp(total, 0, 100)
}

// TrafficLightOf classifies an aggregate score into Red/Yellow/Green.
func TrafficLightOf(aggregate float64) model.TrafficLight {
	switch {
	case aggregate >= 80:
		return model.Green
	case aggregate >= 50:
		return model.Yellow
	default:
		return model.Red
	}
}

// GateInputs are the raw measurements the good-enough predicate checks.
type GateInputs struct {
	SystemScores        []float64
	IntegrationScore    float64
	AggregateScore      float64
	RemainingP0         int
	RemainingP1         int
	TestsPassed         int
	TestsTotal          int
	MCPToolsOK          int
	MCPToolsTotal       int
	FixConvergenceRatio float64
}

// GateResult is the good-enough predicate's verdict: whether the run passed,
// and every reason it did not.
type GateResult struct {
	Passed   bool
	Failures []string
}

// GoodEnough evaluates every clause of spec §4.4's good-enough predicate,
// collecting a human-readable failure reason per violated clause. Per spec
// §8, rates with zero total (no tests run, no tools registered) are treated
// as "no evidence" and pass as 1.0 rather than 0.0.
func GoodEnough(in GateInputs) GateResult {
	var failures []string

	for i, s := range in.SystemScores {
		if s < 60 {
			failures = append(failures, fmt.Sprintf("system %d score %.1f below 60", i, s))
		}
	}

	if in.IntegrationScore < 50 {
		failures = append(failures, fmt.Sprintf("integration score %.1f below 50", in.IntegrationScore))
	}
	if in.AggregateScore < 65 {
		failures = append(failures, fmt.Sprintf("aggregate score %.1f below 65", in.AggregateScore))
	}
	if in.RemainingP0 != 0 {
		failures = append(failures, fmt.Sprintf("%d remaining P0 findings", in.RemainingP0))
	}
	if in.RemainingP1 > 3 {
		failures = append(failures, fmt.Sprintf("%d remaining P1 findings exceeds 3", in.RemainingP1))
	}

	testPassRate := 1.0
	if in.TestsTotal > 0 {
		testPassRate = float64(in.TestsPassed) / float64(in.TestsTotal)
	}
	if testPassRate < 0.85 {
		failures = append(failures, fmt.Sprintf("test pass rate %.2f below 0.85", testPassRate))
	}

	toolCoverage := 1.0
	if in.MCPToolsTotal > 0 {
		toolCoverage = float64(in.MCPToolsOK) / float64(in.MCPToolsTotal)
	}
	if toolCoverage < 0.90 {
		failures = append(failures, fmt.Sprintf("MCP tool coverage %.2f below 0.90", toolCoverage))
	}

	if in.FixConvergenceRatio < 0.70 {
		failures = append(failures, fmt.Sprintf("fix convergence ratio %.2f below 0.70", in.FixConvergenceRatio))
	}

	return GateResult{Passed: len(failures) == 0, Failures: failures}
}
