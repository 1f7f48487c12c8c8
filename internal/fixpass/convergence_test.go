package fixpass_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fleetctl/internal/fixpass"
	"fleetctl/internal/model"
)

func TestConvergenceScoreZeroInitialTotal(t *testing.T) {
	require.Equal(t, 1.0, fixpass.ConvergenceScore(fixpass.PriorityCounts{}, 0))
}

func TestConvergenceScoreClampedToUnitRange(t *testing.T) {
	score := fixpass.ConvergenceScore(fixpass.PriorityCounts{P0: 100}, 1.0)
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 1.0)
}

func TestMetricsFixedCountAndRates(t *testing.T) {
	m := fixpass.Metrics(10, 3, 20, 22, 2, 50, 70, 0.9)
	require.Equal(t, 9, m.FixedCount) // 10-3+2
	require.InDelta(t, 0.9, m.FixEffectiveness, 1e-9)
	require.InDelta(t, 2.0/22.0, m.RegressionRate, 1e-9)
	require.Equal(t, 2, m.NewDefectCount)
	require.InDelta(t, 20.0, m.ScoreDelta, 1e-9)
}

func TestMetricsZeroOpenBeforeNoDivideByZero(t *testing.T) {
	m := fixpass.Metrics(0, 0, 0, 0, 0, 0, 0, 1)
	require.Equal(t, 0.0, m.FixEffectiveness)
}

func TestStopConditionOrderHardBeforeSoft(t *testing.T) {
	// Even though convergence score would trigger a soft stop, pass limit
	// (a hard stop) must be reported since it is checked first.
	decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
		Remaining:          fixpass.PriorityCounts{P1: 1},
		CurrentPass:        5,
		MaxFixPasses:       5,
		BudgetRemaining:    100,
		ConvergenceScore:   0.99,
		EffectivenessFloor: 0.3,
		RegressionCeiling:  0.25,
	})
	require.True(t, decision.ShouldStop)
	require.Equal(t, model.ReasonPassLimit, decision.Reason)
}

func TestAllCriticalResolvedStop(t *testing.T) {
	decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
		Remaining:    fixpass.PriorityCounts{P2: 5},
		CurrentPass:  1,
		MaxFixPasses: 5,
	})
	require.True(t, decision.ShouldStop)
	require.Equal(t, model.ReasonAllCriticalResolved, decision.Reason)
}

func TestEffectivenessFloorSkippedOnPassOne(t *testing.T) {
	decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
		Remaining:          fixpass.PriorityCounts{P0: 1},
		CurrentPass:        1,
		MaxFixPasses:       5,
		BudgetRemaining:    100,
		FixEffectiveness:   0,
		EffectivenessFloor: 0.30,
		RegressionCeiling:  0.25,
	})
	require.False(t, decision.ShouldStop, "pass 1 is exempt from the effectiveness floor")
}

func TestEffectivenessFloorTriggersOnPassTwo(t *testing.T) {
	decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
		Remaining:          fixpass.PriorityCounts{P0: 1},
		CurrentPass:        2,
		MaxFixPasses:       5,
		BudgetRemaining:    100,
		FixEffectiveness:   0,
		EffectivenessFloor: 0.30,
		RegressionCeiling:  0.25,
	})
	require.True(t, decision.ShouldStop)
	require.Equal(t, model.ReasonLowEffectiveness, decision.Reason)
}

func TestHighRegressionStop(t *testing.T) {
	decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
		Remaining:          fixpass.PriorityCounts{P0: 1},
		CurrentPass:        3,
		MaxFixPasses:       5,
		BudgetRemaining:    100,
		FixEffectiveness:   1,
		EffectivenessFloor: 0.30,
		RegressionRate:     0.5,
		RegressionCeiling:  0.25,
	})
	require.True(t, decision.ShouldStop)
	require.Equal(t, model.ReasonHighRegression, decision.Reason)
}

func TestBudgetExhaustedStop(t *testing.T) {
	decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
		Remaining:       fixpass.PriorityCounts{P0: 1},
		CurrentPass:     2,
		MaxFixPasses:    5,
		BudgetRemaining: 0,
	})
	require.True(t, decision.ShouldStop)
	require.Equal(t, model.ReasonBudgetExhausted, decision.Reason)
}

func TestSoftConvergenceRequiresTwoPriorPasses(t *testing.T) {
	in := fixpass.ConvergenceInputs{
		Remaining:         fixpass.PriorityCounts{P1: 2},
		CurrentPass:       3,
		MaxFixPasses:      10,
		BudgetRemaining:   100,
		RegressionCeiling: 0.25,
		ConvergenceScore:  0.5,
		AggregateScore:    75,
	}
	// No prior-pass history supplied: only the 0.85 threshold applies.
	decision := fixpass.Evaluate(in)
	require.False(t, decision.ShouldStop)

	in.PriorPassNewDefects = []int{1, 2}
	decision = fixpass.Evaluate(in)
	require.True(t, decision.ShouldStop)
	require.Equal(t, model.ReasonSoftConvergence, decision.Reason)
}

func TestConvergenceThresholdStop(t *testing.T) {
	decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
		Remaining:         fixpass.PriorityCounts{P1: 2},
		CurrentPass:       2,
		MaxFixPasses:      10,
		BudgetRemaining:   100,
		RegressionCeiling: 0.25,
		ConvergenceScore:  0.9,
	})
	require.True(t, decision.ShouldStop)
	require.Equal(t, model.ReasonConvergenceThreshold, decision.Reason)
}

func TestLoopMustTerminateWithinMaxPasses(t *testing.T) {
	for pass := 1; pass <= 3; pass++ {
		decision := fixpass.Evaluate(fixpass.ConvergenceInputs{
			Remaining:       fixpass.PriorityCounts{P0: 1},
			CurrentPass:     pass,
			MaxFixPasses:    3,
			BudgetRemaining: 100,
		})
		if pass < 3 {
			require.False(t, decision.ShouldStop)
		} else {
			require.True(t, decision.ShouldStop)
			require.Equal(t, model.ReasonPassLimit, decision.Reason)
		}
	}
}
