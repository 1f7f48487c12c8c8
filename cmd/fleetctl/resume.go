package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fleetctl/internal/config"
	"fleetctl/internal/cost"
	"fleetctl/internal/pipeline"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-root> <prd-file>",
	Short: "Resume a crashed or interrupted run from its last checkpoint",
	Long: `resume reloads the checkpoint at <run-root> and continues from its
current_phase. The original PRD file is required again because builders_run
re-embeds the PRD text into every builder's input document on each pass,
the same as a fresh run.`,
	Args: cobra.ExactArgs(2),
	RunE: runResume,
}

func runResume(cmd *cobra.Command, args []string) error {
	runRoot := args[0]
	prdPath := args[1]

	prdBytes, err := os.ReadFile(prdPath)
	if err != nil {
		return fmt.Errorf("fleetctl: reading PRD file %q: %w", prdPath, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.RunRoot = runRoot

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

	state, err := machine.Resume("", time.Now())
	if err != nil {
		return fmt.Errorf("fleetctl: resuming run: %w", err)
	}
	if state.RunID == "" {
		return fmt.Errorf("fleetctl: no checkpoint found at %q", runRoot)
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
