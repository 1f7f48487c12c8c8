package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fleetctl/internal/config"
	"fleetctl/internal/cost"
	"fleetctl/internal/model"
	"fleetctl/internal/pipeline"
	"fleetctl/internal/report"
	"fleetctl/internal/scoring"
)

var runID string

var runCmd = &cobra.Command{
	Use:   "run <prd-file>",
	Short: "Start a new run from a PRD document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (default: a fresh UUID)")
}

// defaultRetryLimits bounds in-phase retry: RPC-backed phases get one retry
// beyond the envelope's own retry/backoff (a handler-level retry covers a
// transport hiccup the envelope's own backoff didn't survive); builders_run
// and fix_pass already have their own per-service/per-pass error isolation,
// so they run once at the Machine level.
func defaultRetryLimits() map[model.Phase]int {
	return map[model.Phase]int{
		model.PhaseDecompose:         1,
		model.PhaseContractsRegister: 1,
		model.PhaseIntegrate:         1,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	prdPath := args[0]
	prdBytes, err := os.ReadFile(prdPath)
	if err != nil {
		return fmt.Errorf("fleetctl: reading PRD file %q: %w", prdPath, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracker := cost.NewTracker(cfg.MaxBudgetUSD)
	store := pipeline.Store{RunRoot: cfg.RunRoot}
	machine := &pipeline.Machine{
		Store:       store,
		Handlers:    buildHandlers(cfg, string(prdBytes)),
		RetryLimits: defaultRetryLimits(),
		Tracker:     tracker,
		Config:      cfg,
	}

	state, err := machine.Resume(runID, time.Now())
	if err != nil {
		return fmt.Errorf("fleetctl: resuming run: %w", err)
	}

	runErr := machine.Run(ctx, state, time.Now)

	path, reportErr := writeAuditReport(cfg, state)
	if reportErr != nil {
		fmt.Fprintf(os.Stderr, "fleetctl: warning: failed to write audit report: %v\n", reportErr)
	} else {
		fmt.Printf("audit report written to %s\n", path)
	}

	if runErr != nil {
		return fmt.Errorf("fleetctl: run %s ended in phase %s: %w", state.RunID, state.CurrentPhase, runErr)
	}

	fmt.Printf("run %s complete: aggregate score %.1f, traffic light %s\n", state.RunID, state.AggregateScore, state.TrafficLight)
	return nil
}

func writeAuditReport(cfg config.Config, state *model.PipelineState) (string, error) {
	gate := scoring.GoodEnough(gateInputsFromState(state))
	data := report.BuildData(state, cfg, gate)
	gen := report.NewGenerator()
	return gen.WriteToFile(cfg.RunRoot, data)
}
