package fixpass

import (
	"context"
	"time"

	"fleetctl/internal/logging"
	"fleetctl/internal/model"
	"fleetctl/internal/snapshot"
)

// Fixer applies fixes for a batch of grouped findings, scoped to a project
// root. The default implementation (subprocessFixer in cmd/fleetctl/wiring.go)
// shells out to a builder subprocess per spec §4.3.5 step 4; tests inject a
// fake.
type Fixer interface {
	ApplyFixes(ctx context.Context, projectRoot string, instructions FixInstructions) error
}

// FixInstructions groups open findings by scan/system code with evidence
// and recommendation, the payload emitted in step 3 of the cycle.
type FixInstructions struct {
	ProjectRoot string
	Groups      map[string][]model.Finding
}

// Rescanner re-runs whatever scanners originally produced findings and
// returns the current open set. Supplied by the caller (integration with
// the quality-gate layers); kept as an interface so the engine has no
// direct dependency on scanner implementations.
type Rescanner interface {
	Rescan(ctx context.Context, projectRoot string) ([]model.Finding, error)
}

// Engine runs the bounded fix-pass loop described in spec §4.3.
type Engine struct {
	Fixer              Fixer
	Rescanner          Rescanner
	MaxFixPasses       int
	EffectivenessFloor float64
	RegressionCeiling  float64
	ProjectRoot        string

	// BudgetRemaining is read fresh on each pass so a shared cost.Tracker
	// reflects spend from outside the loop (builders, RPC calls) too.
	BudgetRemaining func() float64

	// ImpactLookup optionally promotes a finding's priority based on
	// cross-service impact (spec §4.3.1's impact promoter); nil disables it.
	ImpactLookup func(ctx context.Context, finding model.Finding) (impactedNodes int)
}

// Run executes passes until the stop predicate fires, returning every
// FixPassResult produced, in pass order. The loop always terminates because
// PassLimit is a hard stop independent of any other signal.
func (e *Engine) Run(ctx context.Context, findings []model.Finding, aggregateScore func([]model.Finding) float64) ([]model.FixPassResult, []model.Finding, error) {
	log := logging.Get(logging.FixPass)

	open := append([]model.Finding(nil), findings...)
	var results []model.FixPassResult
	var newDefectHistory []int

	initialWeighted := weightedTotal(countByPriority(open))

	for pass := 1; ; pass++ {
		if e.MaxFixPasses == 0 {
			// Running with max_fix_passes = 0 must produce no fix pass at all
			// (spec §8 boundary behaviour).
			break
		}

		start := time.Now()
		before := snapshot.FromFindings(open)
		scoreBefore := aggregateScore(open)

		classified := e.classifyOpen(ctx, open)

		groups := groupByScanOrSystem(classified)
		instructions := FixInstructions{ProjectRoot: e.ProjectRoot, Groups: groups}

		applyErr := e.Fixer.ApplyFixes(ctx, e.ProjectRoot, instructions)

		var rescanned []model.Finding
		if applyErr == nil && e.Rescanner != nil {
			rescanned, _ = e.Rescanner.Rescan(ctx, e.ProjectRoot)
		}

		afterOpen, fixedThisPass := applyRescanResults(classified, rescanned, pass)
		after := snapshot.FromFindings(afterOpen)
		scoreAfter := aggregateScore(afterOpen)

		regressions := snapshot.Regressions(before, after)

		openBefore := countOpen(classified)
		openAfter := countOpen(afterOpen)
		totalBefore := snapshot.TotalEntries(before)
		totalAfter := snapshot.TotalEntries(after)

		remaining := countByPriority(afterOpen)
		convergence := ConvergenceScore(remaining, initialWeighted)

		metrics := Metrics(openBefore, openAfter, totalBefore, totalAfter, len(regressions), scoreBefore, scoreAfter, convergence)
		newDefectHistory = append(newDefectHistory, metrics.NewDefectCount)

		budgetRemaining := 0.0
		if e.BudgetRemaining != nil {
			budgetRemaining = e.BudgetRemaining()
		}

		decision := Evaluate(ConvergenceInputs{
			Remaining:           remaining,
			CurrentPass:         pass,
			MaxFixPasses:        e.MaxFixPasses,
			BudgetRemaining:     budgetRemaining,
			FixEffectiveness:    metrics.FixEffectiveness,
			EffectivenessFloor:  e.EffectivenessFloor,
			RegressionRate:      metrics.RegressionRate,
			RegressionCeiling:   e.RegressionCeiling,
			ConvergenceScore:    convergence,
			AggregateScore:      scoreAfter,
			PriorPassNewDefects: newDefectHistory,
		})

		status := model.FixPassCompleted
		if applyErr != nil {
			status = model.FixPassFailed
		}

		result := model.FixPassResult{
			PassNumber:       pass,
			Status:           status,
			StepsCompleted:   model.OrderedSteps,
			CountsByPriority: countsToMap(countByPriority(classified)),
			Generated:        len(groups),
			Applied:          fixedThisPass,
			Verified:         fixedThisPass,
			RegressionCount:  len(regressions),
			Metrics:          metrics,
			StopReason:       decision.Reason,
			ShouldStop:       decision.ShouldStop,
			Duration:         time.Since(start),
			SnapshotBefore:   before,
			SnapshotAfter:    after,
		}
		results = append(results, result)
		open = afterOpen

		log.Infow("fix pass complete",
			"pass", pass, "stop_reason", decision.Reason, "should_stop", decision.ShouldStop,
			"fixed", metrics.FixedCount, "regressions", len(regressions))

		if decision.ShouldStop {
			break
		}
	}

	return results, open, nil
}

func (e *Engine) classifyOpen(ctx context.Context, findings []model.Finding) []model.Finding {
	out := make([]model.Finding, len(findings))
	for i, f := range findings {
		out[i] = f
		if f.Resolution != model.Open {
			continue
		}
		// Overwrite only if the current priority is not already one of
		// P0..P3 (spec §4.3.5 step 2).
		switch f.Priority {
		case model.P0, model.P1, model.P2, model.P3:
			continue
		}
		priority := Classify(Violation{Severity: "", Category: f.Component, Message: f.Evidence})
		if e.ImpactLookup != nil {
			nodes := e.ImpactLookup(ctx, f)
			priority = ImpactPromotion(priority, nodes)
		}
		out[i].Priority = priority
	}
	return out
}

func groupByScanOrSystem(findings []model.Finding) map[string][]model.Finding {
	groups := make(map[string][]model.Finding)
	for _, f := range findings {
		if f.Resolution != model.Open {
			continue
		}
		code := f.ScanCode
		if code == "" {
			code = f.System
		}
		groups[code] = append(groups[code], f)
	}
	return groups
}

// applyRescanResults recounts resolutions attributable to this pass: a
// finding counts fixed iff its resolution is Fixed AND its FixPassNumber
// equals the current pass (spec §4.3.5 step 5). When no rescanner is
// configured, findings are left exactly as classified (no-op fixer).
func applyRescanResults(classified []model.Finding, rescanned []model.Finding, pass int) ([]model.Finding, int) {
	if rescanned == nil {
		return classified, 0
	}

	fixedThisPass := 0
	for _, f := range rescanned {
		if f.Resolution == model.Fixed && f.FixPassNumber == pass {
			fixedThisPass++
		}
	}
	return rescanned, fixedThisPass
}

func countOpen(findings []model.Finding) int {
	n := 0
	for _, f := range findings {
		if f.Resolution == model.Open {
			n++
		}
	}
	return n
}

func countByPriority(findings []model.Finding) PriorityCounts {
	var c PriorityCounts
	for _, f := range findings {
		if f.Resolution != model.Open {
			continue
		}
		switch f.Priority {
		case model.P0:
			c.P0++
		case model.P1:
			c.P1++
		case model.P2:
			c.P2++
		case model.P3:
			c.P3++
		}
	}
	return c
}

func weightedTotal(c PriorityCounts) float64 {
	return float64(c.P0)*0.4 + float64(c.P1)*0.3 + float64(c.P2)*0.1
}

func countsToMap(c PriorityCounts) map[model.Priority]int {
	return map[model.Priority]int{
		model.P0: c.P0,
		model.P1: c.P1,
		model.P2: c.P2,
		model.P3: c.P3,
	}
}
