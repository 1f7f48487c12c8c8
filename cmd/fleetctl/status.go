package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fleetctl/internal/model"
	"fleetctl/internal/pipeline"
)

var watch bool

var statusCmd = &cobra.Command{
	Use:   "status <run-root>",
	Short: "Print (or watch) a run's current checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&watch, "watch", false, "Stream status updates as the checkpoint changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := pipeline.Store{RunRoot: args[0]}

	if !watch {
		state, err := store.Load()
		if err != nil {
			return fmt.Errorf("fleetctl: loading checkpoint: %w", err)
		}
		printStatus(state)
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	states := make(chan *model.PipelineState)
	watcher := pipeline.Watcher{Store: store}

	errCh := make(chan error, 1)
	go func() { errCh <- watcher.Watch(ctx, states) }()

	for {
		select {
		case state, ok := <-states:
			if !ok {
				return nil
			}
			printStatus(state)
			if state.CurrentPhase == model.PhaseComplete || state.CurrentPhase == model.PhaseFailed {
				cancel()
			}
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				return fmt.Errorf("fleetctl: watch: %w", err)
			}
			return nil
		}
	}
}

func printStatus(state *model.PipelineState) {
	fmt.Printf(
		"run %s: phase=%s cost=$%.2f score=%.1f (%s) findings=%d completed_phases=%v\n",
		state.RunID, state.CurrentPhase, state.TotalCost, state.AggregateScore, state.TrafficLight,
		len(state.Findings), state.CompletedPhases,
	)
}
