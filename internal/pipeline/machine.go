// Package pipeline implements C1: the phase state machine that sequences a
// run from init through complete (or failed), checkpointing after every
// transition and resuming crashed runs from their last good checkpoint.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"fleetctl/internal/config"
	"fleetctl/internal/cost"
	"fleetctl/internal/logging"
	"fleetctl/internal/model"
)

// Handler executes one phase's work and returns the next phase to enter.
// A handler that returns (model.PhaseFailed, err) drives the machine to the
// terminal failed state with err as the failure reason.
type Handler func(ctx context.Context, state *model.PipelineState, cfg config.Config, tracker *cost.Tracker) (model.Phase, error)

// Machine runs the fixed phase sequence, persisting a checkpoint after
// every transition, per spec §4.1.
type Machine struct {
	Store    Store
	Handlers map[model.Phase]Handler

	// RetryLimits bounds in-phase retry per phase; phases absent from the
	// map get zero retries (one attempt, no retry).
	RetryLimits map[model.Phase]int

	Tracker *cost.Tracker
	Config  config.Config
}

// Resume loads the checkpoint at m.Store.RunRoot if present and its schema
// matches, otherwise starts a fresh PipelineState for runID. Either way the
// returned state's CurrentPhase is where the next Advance call should begin
// — a phase that was in-flight at crash time is simply re-attempted, since
// PipelineState carries no finer-grained in-progress marker than the phase
// itself (unlike the teacher's task-level resetInProgress, there is no
// partial task state to roll back here).
func (m *Machine) Resume(runID string, now time.Time) (*model.PipelineState, error) {
	log := logging.Get(logging.Pipeline)

	state, err := m.Store.Load()
	switch err {
	case nil:
		log.Infow("resuming run from checkpoint", "run_id", state.RunID, "phase", state.CurrentPhase)
		return state, nil
	case ErrNoCheckpoint, ErrSchemaMismatch:
		log.Infow("starting fresh run", "run_id", runID, "reason", err)
		return model.NewPipelineState(runID, now), nil
	default:
		return nil, err
	}
}

// Advance executes exactly one phase transition: it looks up the handler
// for state.CurrentPhase, runs it (honoring ctx cancellation and bounded
// in-phase retry), and on success appends the phase to CompletedPhases,
// advances CurrentPhase to the handler's returned next phase, and persists
// the checkpoint atomically before returning.
func (m *Machine) Advance(ctx context.Context, state *model.PipelineState, now time.Time) (model.Phase, error) {
	log := logging.Get(logging.Pipeline)

	if err := ctx.Err(); err != nil {
		return m.fail(state, now, fmt.Errorf("%w: %v", ErrCancelled, err))
	}

	if !isResumable(state) {
		return m.fail(state, now, ErrOutOfOrderPhase)
	}

	if state.CurrentPhase == model.PhaseComplete || state.CurrentPhase == model.PhaseFailed {
		return state.CurrentPhase, nil
	}

	handler, ok := m.Handlers[state.CurrentPhase]
	if !ok {
		return m.fail(state, now, fmt.Errorf("pipeline: no handler registered for phase %q", state.CurrentPhase))
	}

	retries := m.RetryLimits[state.CurrentPhase]
	var next model.Phase
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return m.fail(state, now, fmt.Errorf("%w: %v", ErrCancelled, ctxErr))
		}
		next, err = handler(ctx, state, m.Config, m.Tracker)
		if err == nil {
			break
		}
		log.Warnw("phase handler failed, retrying", "phase", state.CurrentPhase, "attempt", attempt, "err", err)
	}
	if err != nil {
		return m.fail(state, now, err)
	}

	completed := state.CurrentPhase
	state.CompletedPhases = append(state.CompletedPhases, completed)
	state.CurrentPhase = next
	state.UpdatedAt = now
	state.TotalCost = m.Tracker.Total()
	state.PhaseCosts = m.Tracker.PhaseCosts()

	if err := m.Store.Save(state); err != nil {
		return completed, fmt.Errorf("pipeline: phase %q completed but checkpoint failed: %w", completed, err)
	}

	log.Infow("phase transition", "from", completed, "to", next)
	return next, nil
}

func (m *Machine) fail(state *model.PipelineState, now time.Time, reason error) (model.Phase, error) {
	state.CurrentPhase = model.PhaseFailed
	state.FailureReason = reason.Error()
	state.UpdatedAt = now
	_ = m.Store.Save(state)
	return model.PhaseFailed, reason
}

// isResumable checks the advance precondition: state.CurrentPhase must be
// the phase immediately following the last completed phase, or init with
// no completed phases yet.
func isResumable(state *model.PipelineState) bool {
	if state.CurrentPhase == model.PhaseFailed || state.CurrentPhase == model.PhaseComplete {
		return true
	}
	if len(state.CompletedPhases) == 0 {
		return state.CurrentPhase == model.PhaseInit || state.CurrentPhase == model.PhaseFixPass
	}
	last := state.CompletedPhases[len(state.CompletedPhases)-1]
	if state.CurrentPhase == model.PhaseFixPass {
		// fix_pass loops on itself until the convergence predicate fires.
		return true
	}
	expected := nextInOrder(last)
	return state.CurrentPhase == expected
}

func nextInOrder(p model.Phase) model.Phase {
	for i, ph := range model.Order {
		if ph == p && i+1 < len(model.Order) {
			return model.Order[i+1]
		}
	}
	return model.PhaseFailed
}

// Run drives the machine to completion or failure, calling Advance
// repeatedly until CurrentPhase reaches a terminal state.
func (m *Machine) Run(ctx context.Context, state *model.PipelineState, now func() time.Time) error {
	for {
		phase, err := m.Advance(ctx, state, now())
		if err != nil {
			return err
		}
		if phase == model.PhaseComplete || phase == model.PhaseFailed {
			return nil
		}
	}
}
