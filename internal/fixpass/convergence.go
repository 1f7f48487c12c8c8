package fixpass

import "fleetctl/internal/model"

// PriorityCounts tallies remaining open findings per priority.
type PriorityCounts struct {
	P0, P1, P2, P3 int
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// ConvergenceScore computes spec §4.3.4's weighted convergence metric,
// clamped to [0,1]. When initialWeightedTotal <= 0 the score is defined as
// 1.0 (nothing was ever wrong, so the run is fully converged).
func ConvergenceScore(remaining PriorityCounts, initialWeightedTotal float64) float64 {
	if initialWeightedTotal <= 0 {
		return 1.0
	}
	weighted := float64(remaining.P0)*0.4 + float64(remaining.P1)*0.3 + float64(remaining.P2)*0.1
	return clamp01(1.0 - weighted/initialWeightedTotal)
}

// Metrics computes the per-pass metrics of spec §4.3.3.
func Metrics(openBefore, openAfter, totalBefore, totalAfter, regressionCount int, scoreBefore, scoreAfter, convergence float64) model.FixPassMetrics {
	fixedCount := openBefore - openAfter + regressionCount
	if fixedCount < 0 {
		fixedCount = 0
	}

	effectiveness := 0.0
	if openBefore > 0 {
		effectiveness = float64(fixedCount) / float64(openBefore)
	}

	regressionRate := 0.0
	if totalAfter > 0 {
		regressionRate = float64(regressionCount) / float64(totalAfter)
	}

	newDefects := totalAfter - totalBefore
	if newDefects < 0 {
		newDefects = 0
	}

	return model.FixPassMetrics{
		FixedCount:       fixedCount,
		FixEffectiveness: effectiveness,
		RegressionRate:   regressionRate,
		NewDefectCount:   newDefects,
		ScoreDelta:       scoreAfter - scoreBefore,
		ConvergenceScore: convergence,
	}
}

// ConvergenceInputs bundles everything the stop predicate needs to evaluate
// spec §4.3.4's ordered stop conditions.
type ConvergenceInputs struct {
	Remaining             PriorityCounts
	CurrentPass           int
	MaxFixPasses          int
	BudgetRemaining       float64
	FixEffectiveness      float64
	EffectivenessFloor    float64
	RegressionRate        float64
	RegressionCeiling     float64
	ConvergenceScore      float64
	AggregateScore        float64
	// PriorPassNewDefects holds the new-defect counts of prior passes, oldest
	// first. Soft convergence's "last two passes each introduced < 3 new
	// defects" clause is only evaluated when at least two entries are
	// supplied (spec Open Question #3); otherwise only the 0.85 threshold
	// applies.
	PriorPassNewDefects []int
}

// StopDecision is the outcome of one evaluation of the stop predicate.
type StopDecision struct {
	ShouldStop bool
	Reason     model.StopReason
}

// Evaluate checks the Hard/Soft stop conditions of spec §4.3.4 in order;
// the first match wins. The Hard PassLimit condition guarantees
// termination regardless of any other input.
func Evaluate(in ConvergenceInputs) StopDecision {
	if in.Remaining.P0 == 0 && in.Remaining.P1 == 0 {
		return StopDecision{true, model.ReasonAllCriticalResolved}
	}
	if in.CurrentPass >= in.MaxFixPasses {
		return StopDecision{true, model.ReasonPassLimit}
	}
	if in.BudgetRemaining <= 0 {
		return StopDecision{true, model.ReasonBudgetExhausted}
	}
	if in.CurrentPass > 1 && in.FixEffectiveness < in.EffectivenessFloor {
		return StopDecision{true, model.ReasonLowEffectiveness}
	}
	if in.RegressionRate > in.RegressionCeiling {
		return StopDecision{true, model.ReasonHighRegression}
	}

	if in.ConvergenceScore >= 0.85 {
		return StopDecision{true, model.ReasonConvergenceThreshold}
	}

	if len(in.PriorPassNewDefects) >= 2 {
		lastTwo := in.PriorPassNewDefects[len(in.PriorPassNewDefects)-2:]
		lastTwoLow := lastTwo[0] < 3 && lastTwo[1] < 3
		if in.Remaining.P0 == 0 && in.Remaining.P1 <= 2 && lastTwoLow && in.AggregateScore >= 70 {
			return StopDecision{true, model.ReasonSoftConvergence}
		}
	}

	return StopDecision{false, model.ReasonContinue}
}
