package fixpass_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fleetctl/internal/fixpass"
	"fleetctl/internal/model"
)

func TestClassifyP0BySeverity(t *testing.T) {
	require.Equal(t, model.P0, fixpass.Classify(fixpass.Violation{Severity: "critical"}))
	require.Equal(t, model.P0, fixpass.Classify(fixpass.Violation{Severity: "blocker"}))
}

func TestClassifyP0ByMessage(t *testing.T) {
	require.Equal(t, model.P0, fixpass.Classify(fixpass.Violation{Message: "Container Crash detected on boot"}))
	require.Equal(t, model.P0, fixpass.Classify(fixpass.Violation{Message: "segfault in worker"}))
}

func TestClassifyP0ByInfraCategoryAndError(t *testing.T) {
	require.Equal(t, model.P0, fixpass.Classify(fixpass.Violation{Severity: "error", Category: "build"}))
}

func TestClassifyP1ByCategoryAloneNotErrorSeverity(t *testing.T) {
	require.Equal(t, model.P1, fixpass.Classify(fixpass.Violation{Severity: "warning", Category: "contract"}))
}

func TestClassifyP1ByMessage(t *testing.T) {
	require.Equal(t, model.P1, fixpass.Classify(fixpass.Violation{Message: "connection refused talking to db"}))
}

func TestClassifyP2ByWarningSeverity(t *testing.T) {
	require.Equal(t, model.P2, fixpass.Classify(fixpass.Violation{Severity: "warning", Message: "just a heads up"}))
}

func TestClassifyP3ByStyleCategory(t *testing.T) {
	require.Equal(t, model.P3, fixpass.Classify(fixpass.Violation{Category: "naming"}))
}

func TestClassifyUnknownFallsBackToP2(t *testing.T) {
	require.Equal(t, model.P2, fixpass.Classify(fixpass.Violation{}))
}

func TestClassifyFirstMatchWins(t *testing.T) {
	// Severity=error AND category=infrastructure would match both the P0 infra rule
	// and the P1 "severity=error" rule; P0 must win as the first match.
	require.Equal(t, model.P0, fixpass.Classify(fixpass.Violation{Severity: "error", Category: "infrastructure"}))
}

func TestImpactPromotion(t *testing.T) {
	require.Equal(t, model.P0, fixpass.ImpactPromotion(model.P3, 10))
	require.Equal(t, model.P1, fixpass.ImpactPromotion(model.P3, 3))
	require.Equal(t, model.P0, fixpass.ImpactPromotion(model.P0, 3), "P0 is already at least P1, must not be demoted")
	require.Equal(t, model.P2, fixpass.ImpactPromotion(model.P2, 2))
}

func TestClassifyIsPure(t *testing.T) {
	v := fixpass.Violation{Severity: "error", Category: "api", Message: "500 error from gateway"}
	first := fixpass.Classify(v)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, fixpass.Classify(v))
	}
}
