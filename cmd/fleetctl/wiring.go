// This file composes the C1-C8 components into the concrete phase handlers
// the pipeline.Machine drives, the way the teacher's cmd_campaign.go
// composes a decomposer and an orchestrator inline inside the CLI command
// rather than inside the library packages themselves.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"fleetctl/internal/builder"
	"fleetctl/internal/config"
	"fleetctl/internal/cost"
	"fleetctl/internal/fixpass"
	"fleetctl/internal/health"
	"fleetctl/internal/logging"
	"fleetctl/internal/model"
	"fleetctl/internal/pipeline"
	"fleetctl/internal/rpcclient"
	"fleetctl/internal/scoring"
)

// buildHandlers wires every phase of model.Order to its concrete
// implementation (the terminal complete/failed states are not in Order, and
// pipeline.Machine never looks up a handler for them). prdText is the raw
// PRD document read from the CLI's run <prd-file> argument.
func buildHandlers(cfg config.Config, prdText string) map[model.Phase]pipeline.Handler {
	decomposer := &rpcclient.Decomposer{
		Envelope:    rpcclient.NewEnvelope(rpcclient.NewHTTPTransport(cfg.Services.Decomposer, rpcclient.DefaultTimeout), "decomposer", cfg.RPCMaxRetries, cfg.RPCBackoffBase),
		ProjectRoot: cfg.ProjectRoot,
	}
	registry := &rpcclient.ContractRegistry{
		Envelope:    rpcclient.NewEnvelope(rpcclient.NewHTTPTransport(cfg.Services.ContractRegistry, rpcclient.DefaultTimeout), "contract-registry", cfg.RPCMaxRetries, cfg.RPCBackoffBase),
		ProjectRoot: cfg.ProjectRoot,
	}
	codeIntel := &rpcclient.CodeIntel{
		Envelope:    rpcclient.NewEnvelope(rpcclient.NewHTTPTransport(cfg.Services.CodeIntel, rpcclient.DefaultTimeout), "code-intel", cfg.RPCMaxRetries, cfg.RPCBackoffBase),
		ProjectRoot: cfg.ProjectRoot,
	}

	// Contracts discovered in contracts_register are consumed by the
	// builders_run command builder; captured here so both closures share
	// the same slice without putting transient RPC payloads on PipelineState.
	var contracts []rpcclient.Contract

	return map[model.Phase]pipeline.Handler{
		model.PhaseInit: func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error) {
			return model.PhaseDecompose, nil
		},

		model.PhaseDecompose: func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error) {
			result, err := decomposer.Decompose(ctx, prdText)
			if err != nil {
				return model.PhaseFailed, err
			}
			for _, svc := range result.Services {
				state.ServiceDescriptors[svc.ServiceID] = model.ServiceDescriptor{
					ServiceID: svc.ServiceID,
					Domain:    svc.Domain,
					Stack:     map[string]string{},
					Status:    model.ServicePending,
				}
			}
			return model.PhaseContractsRegister, nil
		},

		model.PhaseContractsRegister: func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error) {
			listing, err := registry.ListContracts(ctx)
			if err != nil {
				return model.PhaseFailed, err
			}
			contracts = listing.Contracts
			return model.PhaseBuildersRun, nil
		},

		model.PhaseBuildersRun: func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error) {
			services := sortedDescriptors(state.ServiceDescriptors)

			scheduler := &builder.Scheduler{
				Dispatcher:    builder.SubprocessDispatcher{},
				MaxConcurrent: cfg.MaxConcurrentBuilders,
				RunRoot:       cfg.RunRoot,
				BuildCommand:  buildCommand(cfg, prdText, contracts),
			}

			results, err := scheduler.Run(ctx, services)
			if err != nil {
				return model.PhaseFailed, err
			}

			anySucceeded := false
			for id, result := range results {
				state.BuilderResults[id] = result
				tracker.AddPhaseCost(model.PhaseBuildersRun, result.Cost)

				descriptor := state.ServiceDescriptors[id]
				descriptor.OutputDir = result.OutputDir
				if result.Success {
					descriptor.Status = model.ServiceBuilt
					anySucceeded = true
				} else {
					descriptor.Status = model.ServiceFailed
				}
				state.ServiceDescriptors[id] = descriptor
			}

			// Spec §7: a builder failure is captured per-service; the phase
			// itself only fails the pipeline if *every* builder failed.
			if len(results) > 0 && !anySucceeded {
				return model.PhaseFailed, fmt.Errorf("builders_run: all %d builders failed", len(results))
			}
			return model.PhaseIntegrate, nil
		},

		model.PhaseIntegrate: func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error) {
			endpointToService := make(map[string]string)
			var endpoints []string
			for id, svc := range state.ServiceDescriptors {
				ep := healthURL(svc)
				if ep == "" {
					continue
				}
				endpointToService[ep] = id
				endpoints = append(endpoints, ep)
			}
			sort.Strings(endpoints)

			if len(endpoints) > 0 {
				poller := health.NewPoller()
				statuses, _ := poller.PollUntilHealthy(
					ctx, endpoints,
					time.Duration(cfg.HealthCheckTimeoutS)*time.Second,
					time.Duration(cfg.HealthCheckIntervalS)*time.Second,
					cfg.RequiredConsecutiveHealthy,
				)
				for ep, status := range statuses {
					id := endpointToService[ep]
					state.MCPHealth[id] = status.Healthy
					descriptor := state.ServiceDescriptors[id]
					if status.Healthy {
						descriptor.Status = model.ServiceHealthy
					} else if descriptor.Status != model.ServiceFailed {
						descriptor.Status = model.ServiceUnhealthy
					}
					state.ServiceDescriptors[id] = descriptor
				}
			}

			// Best-effort codebase map: the result is not used further and a
			// failure is only logged, never fatal.
			if _, err := codeIntel.CodebaseMap(ctx); err != nil {
				logging.Get(logging.CLI).Debugw("codebase map unavailable during integrate", "err", err)
			}

			return model.PhaseQualityGate, nil
		},

		model.PhaseQualityGate: func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error) {
			seedFindingsFromBuilderResults(state)
			recomputeScores(state)
			return model.PhaseFixPass, nil
		},

		model.PhaseFixPass: func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error) {
			engine := &fixpass.Engine{
				Fixer:              subprocessFixer{cfg: cfg},
				Rescanner:          subprocessRescanner{cfg: cfg},
				MaxFixPasses:       cfg.MaxFixPasses,
				EffectivenessFloor: cfg.FixEffectivenessFloor,
				RegressionCeiling:  cfg.RegressionRateCeiling,
				ProjectRoot:        cfg.ProjectRoot,
				BudgetRemaining:    tracker.Remaining,
			}

			baseline := state.AggregateScore
			scoreFn := func(findings []model.Finding) float64 { return scoreFromFindings(baseline, findings) }

			results, openFindings, err := engine.Run(ctx, state.Findings, scoreFn)
			if err != nil {
				return model.PhaseFailed, err
			}
			state.FixPasses = append(state.FixPasses, results...)
			state.Findings = openFindings
			for _, r := range results {
				tracker.AddPhaseCost(model.PhaseFixPass, r.Cost)
			}
			recomputeScores(state)

			if len(results) > 0 && results[len(results)-1].StopReason == model.ReasonBudgetExhausted {
				state.FailureReason = "BudgetExhausted"
				return model.PhaseFailed, fmt.Errorf("fix_pass: %s", state.FailureReason)
			}
			return model.PhaseComplete, nil
		},
	}
}

func sortedDescriptors(m map[string]model.ServiceDescriptor) []model.ServiceDescriptor {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.ServiceDescriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func healthURL(svc model.ServiceDescriptor) string {
	if svc.HealthEndpoint == "" || svc.Port == 0 {
		return ""
	}
	return fmt.Sprintf("http://127.0.0.1:%d%s", svc.Port, svc.HealthEndpoint)
}

// builderInput is the configuration document written to each service's
// output_dir, per spec §6's builder contract.
type builderInput struct {
	PRDText                    string               `json:"prd_text"`
	ContractStubs              []rpcclient.Contract `json:"contract_stubs"`
	FailureContext             string               `json:"failure_context,omitempty"`
	AcceptanceTestRequirements string               `json:"acceptance_test_requirements,omitempty"`
}

func buildCommand(cfg config.Config, prdText string, contracts []rpcclient.Contract) builder.CommandBuilder {
	return func(svc model.ServiceDescriptor, outputDir string) builder.Command {
		log := logging.Get(logging.Builder)

		input := builderInput{PRDText: prdText, ContractStubs: contracts}
		data, err := json.MarshalIndent(input, "", "  ")
		inputPath := filepath.Join(outputDir, "builder_input.json")
		if err != nil {
			log.Errorw("failed to marshal builder input", "service_id", svc.ServiceID, "err", err)
		} else if err := os.WriteFile(inputPath, data, 0o644); err != nil {
			log.Errorw("failed to write builder input", "service_id", svc.ServiceID, "err", err)
		}

		args := append(append([]string{}, cfg.BuilderArgs...), "build", "--input", inputPath)
		return builder.Command{
			Binary:    cfg.BuilderBinary,
			Arguments: args,
			Timeout:   time.Duration(cfg.BuilderTimeoutS) * time.Second,
		}
	}
}

// seedFindingsFromBuilderResults turns raw BuilderResult failures into
// unclassified Findings (priority left empty so fixpass.Classify assigns it
// on the first fix pass, per spec §4.3.5 step 2).
func seedFindingsFromBuilderResults(state *model.PipelineState) {
	ids := make([]string, 0, len(state.BuilderResults))
	for id := range state.BuilderResults {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		result := state.BuilderResults[id]
		if !result.Success {
			state.Findings = append(state.Findings, model.Finding{
				FindingID:      nextFindingID(state),
				System:         id,
				Component:      "builder",
				Evidence:       result.Error,
				Recommendation: "inspect builder output and resolve the build failure",
				Resolution:     model.Open,
				ScanCode:       "build_failure",
				FilePath:       result.OutputDir,
				CreatedAt:      state.UpdatedAt,
			})
			continue
		}
		if result.TestTotal > 0 && result.TestPassed < result.TestTotal {
			state.Findings = append(state.Findings, model.Finding{
				FindingID:      nextFindingID(state),
				System:         id,
				Component:      "tests",
				Evidence:       fmt.Sprintf("test fail: %d/%d passed", result.TestPassed, result.TestTotal),
				Recommendation: "investigate the failing tests and address the root cause",
				Resolution:     model.Open,
				ScanCode:       "test_failure",
				FilePath:       result.OutputDir,
				CreatedAt:      state.UpdatedAt,
			})
		}
	}
}

func nextFindingID(state *model.PipelineState) string {
	max := 0
	for _, f := range state.Findings {
		n, err := strconv.Atoi(strings.TrimPrefix(f.FindingID, "FINDING-"))
		if err == nil && n > max {
			max = n
		}
	}
	return fmt.Sprintf("FINDING-%03d", max+1)
}

// recomputeScores rebuilds per-system/integration/aggregate scores from the
// run's current BuilderResults, Findings and MCPHealth, so a report taken
// after fix passes reflects their effect.
func recomputeScores(state *model.PipelineState) {
	violationsBySystem := make(map[string]int)
	for _, f := range state.Findings {
		if f.Resolution == model.Open {
			violationsBySystem[f.System]++
		}
	}

	ids := make([]string, 0, len(state.ServiceDescriptors))
	for id := range state.ServiceDescriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	totals := make([]float64, 0, len(ids))
	healthyCount := 0
	for _, id := range ids {
		descriptor := state.ServiceDescriptors[id]
		result := state.BuilderResults[id]

		testRate := 1.0
		if result.TestTotal > 0 {
			testRate = float64(result.TestPassed) / float64(result.TestTotal)
		}
		requirementRate := 0.0
		if result.Success {
			requirementRate = 1.0
		}
		healthRate := 0.0
		if state.MCPHealth[id] {
			healthRate = 1.0
			healthyCount++
		}

		score := scoring.SystemScore(scoring.SystemScoreInputs{
			RequirementPassRate: requirementRate,
			TestPassRate:        testRate,
			ContractPassRate:    requirementRate,
			Violations:          violationsBySystem[id],
			LOC:                 descriptor.EstimatedLOC,
			HealthCheckRate:     healthRate,
			ArtifactsPresent:    len(result.Artifacts),
			ArtifactsRequired:   1,
		})
		state.Scores[id] = score
		totals = append(totals, score.Total)
	}

	phasesTotal := len(model.Order)
	integration := scoring.IntegrationScoreOf(scoring.IntegrationScoreInputs{
		ToolsOK:              healthyCount,
		FlowsPassing:         healthyCount,
		FlowsTotal:           len(ids),
		CrossBuildViolations: 0,
		PhasesComplete:       len(state.CompletedPhases),
		PhasesTotal:          phasesTotal,
	})
	state.Integration = integration
	state.AggregateScore = scoring.Aggregate(totals, integration.Total)
	state.TrafficLight = scoring.TrafficLightOf(state.AggregateScore)
}

// scoreFromFindings is the lightweight per-pass proxy the fix-pass engine
// uses for its before/after score_delta metric: the quality-gate's full
// weighted aggregate minus a priority-weighted penalty for what's still
// open, clamped to [0,100].
func scoreFromFindings(base float64, findings []model.Finding) float64 {
	var p0, p1, p2, p3 int
	for _, f := range findings {
		if f.Resolution != model.Open {
			continue
		}
		switch f.Priority {
		case model.P0:
			p0++
		case model.P1:
			p1++
		case model.P2:
			p2++
		case model.P3:
			p3++
		}
	}
	penalty := float64(p0)*10 + float64(p1)*5 + float64(p2)*2 + float64(p3)*1
	score := base - penalty
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// subprocessFixer is the default fixer collaborator spec §4.3.5 step 4
// describes: "a subprocess builder scoped to each project root". Grounded
// on builder.SubprocessDispatcher's exec.CommandContext pattern, specialised
// for the fix-instructions opcode instead of the build opcode.
type subprocessFixer struct {
	cfg config.Config
}

func (f subprocessFixer) ApplyFixes(ctx context.Context, projectRoot string, instructions fixpass.FixInstructions) error {
	data, err := json.Marshal(instructions.Groups)
	if err != nil {
		return fmt.Errorf("fixpass: marshal instructions: %w", err)
	}
	instructionsPath := filepath.Join(projectRoot, ".fleetctl_fix_instructions.json")
	if err := os.WriteFile(instructionsPath, data, 0o644); err != nil {
		return fmt.Errorf("fixpass: write instructions: %w", err)
	}

	timeout := time.Duration(f.cfg.BuilderTimeoutS) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, f.cfg.BuilderArgs...), "fix", "--input", instructionsPath)
	cmd := exec.CommandContext(runCtx, f.cfg.BuilderBinary, args...)
	cmd.Dir = projectRoot

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("fixpass: fixer subprocess failed: %w, output: %s", err, truncateOutput(output))
	}
	return nil
}

// subprocessRescanner re-runs the same subprocess builder in "rescan" mode,
// expecting a JSON array of model.Finding on stdout.
type subprocessRescanner struct {
	cfg config.Config
}

func (r subprocessRescanner) Rescan(ctx context.Context, projectRoot string) ([]model.Finding, error) {
	timeout := time.Duration(r.cfg.BuilderTimeoutS) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, r.cfg.BuilderArgs...), "rescan")
	cmd := exec.CommandContext(runCtx, r.cfg.BuilderBinary, args...)
	cmd.Dir = projectRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("fixpass: rescan subprocess failed: %w, stderr: %s", err, truncateOutput(stderr.Bytes()))
	}

	var findings []model.Finding
	if err := json.Unmarshal(stdout.Bytes(), &findings); err != nil {
		return nil, fmt.Errorf("fixpass: unparseable rescan output: %w", err)
	}
	return findings, nil
}

// gateInputsFromState flattens a finished PipelineState into the good-enough
// predicate's input shape.
func gateInputsFromState(state *model.PipelineState) scoring.GateInputs {
	ids := make([]string, 0, len(state.Scores))
	for id := range state.Scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	totals := make([]float64, 0, len(ids))
	for _, id := range ids {
		totals = append(totals, state.Scores[id].Total)
	}

	var remainingP0, remainingP1 int
	for _, f := range state.Findings {
		if f.Resolution != model.Open {
			continue
		}
		switch f.Priority {
		case model.P0:
			remainingP0++
		case model.P1:
			remainingP1++
		}
	}

	var testsPassed, testsTotal int
	for _, r := range state.BuilderResults {
		testsPassed += r.TestPassed
		testsTotal += r.TestTotal
	}

	mcpOK := 0
	for _, healthy := range state.MCPHealth {
		if healthy {
			mcpOK++
		}
	}

	convergence := 1.0
	if n := len(state.FixPasses); n > 0 {
		convergence = state.FixPasses[n-1].Metrics.ConvergenceScore
	}

	return scoring.GateInputs{
		SystemScores:        totals,
		IntegrationScore:    state.Integration.Total,
		AggregateScore:      state.AggregateScore,
		RemainingP0:         remainingP0,
		RemainingP1:         remainingP1,
		TestsPassed:         testsPassed,
		TestsTotal:          testsTotal,
		MCPToolsOK:          mcpOK,
		MCPToolsTotal:       len(state.ServiceDescriptors),
		FixConvergenceRatio: convergence,
	}
}

func truncateOutput(b []byte) string {
	const max = 2000
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "...(truncated)"
}
