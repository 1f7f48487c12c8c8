// Package cost implements C7: a monotonic, per-phase cost accumulator with
// a hard budget ceiling. The ceiling itself is enforced by the fix-pass
// convergence predicate (spec §4.3.4); this package only tracks and reports.
package cost

import (
	"sync"

	"fleetctl/internal/model"
)

// Tracker accumulates cost spend, bucketed per pipeline phase.
type Tracker struct {
	mu          sync.Mutex
	phaseCosts  map[model.Phase]float64
	total       float64
	maxBudget   float64
}

// NewTracker creates a tracker with the given hard budget ceiling.
func NewTracker(maxBudgetUSD float64) *Tracker {
	return &Tracker{
		phaseCosts: make(map[model.Phase]float64),
		maxBudget:  maxBudgetUSD,
	}
}

// AddPhaseCost adds delta to phase's running total and the grand total.
// Negative deltas are rejected: cost accounting only ever moves forward.
func (t *Tracker) AddPhaseCost(phase model.Phase, delta float64) {
	if delta < 0 {
		delta = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phaseCosts[phase] += delta
	t.total += delta
}

// Total returns the running grand total across all phases.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// PhaseCosts returns a snapshot copy of the per-phase buckets.
func (t *Tracker) PhaseCosts() map[model.Phase]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.Phase]float64, len(t.phaseCosts))
	for k, v := range t.phaseCosts {
		out[k] = v
	}
	return out
}

// Remaining returns max_budget_usd - total, floored at 0.
func (t *Tracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.maxBudget - t.total
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether the hard budget ceiling has been reached.
func (t *Tracker) Exhausted() bool {
	return t.Remaining() <= 0
}

// MaxBudget returns the configured ceiling.
func (t *Tracker) MaxBudget() float64 {
	return t.maxBudget
}
