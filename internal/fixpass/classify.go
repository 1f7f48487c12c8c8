// Package fixpass implements C3: priority classification, the
// Discover->Classify->Generate->Apply->Verify->Regress cycle, metrics, and
// the convergence stop predicate, per spec §4.3.
package fixpass

import (
	"strings"

	"fleetctl/internal/model"
)

// Violation is the raw observation classify() operates on, before it
// becomes a model.Finding. Severity/Category/Message mirror the fields a
// scanner layer would emit.
type Violation struct {
	Severity string
	Category string
	Message  string
}

var p0Messages = []string{
	"cannot start", "build fail", "container crash", "missing entrypoint",
	"startup fail", "import error", "module not found", "syntax error",
	"crash", "segfault", "oom",
}

var p0Severities = map[string]bool{"critical": true, "fatal": true, "blocker": true}
var p0InfraCategories = map[string]bool{"build": true, "startup": true, "infrastructure": true}

var p1Messages = []string{
	"primary", "endpoint fail", "auth broken", "test fail", "api error",
	"500 error", "connection refused", "timeout", "data loss",
	"contract violation", "breaking change",
}
var p1Categories = map[string]bool{"test": true, "api": true, "contract": true, "security": true}

var p2Messages = []string{"secondary", "non-critical", "minor", "missing test", "coverage"}
var p2Categories = map[string]bool{"documentation": true, "coverage": true, "performance": true}

var p3Categories = map[string]bool{"style": true, "naming": true, "formatting": true}
var p3Severities = map[string]bool{"info": true, "style": true, "hint": true}

func containsAny(haystack string, needles []string) bool {
	h := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(h, n) {
			return true
		}
	}
	return false
}

// Classify returns the violation's priority via the strict first-match
// cascade of spec §4.3.1. Pure: same input always yields the same output.
func Classify(v Violation) model.Priority {
	severity := strings.ToLower(v.Severity)
	category := strings.ToLower(v.Category)

	// P0
	if p0Severities[severity] {
		return model.P0
	}
	if containsAny(v.Message, p0Messages) {
		return model.P0
	}
	if p0InfraCategories[category] && severity == "error" {
		return model.P0
	}

	// P1
	if severity == "error" {
		return model.P1
	}
	if p1Categories[category] {
		return model.P1
	}
	if containsAny(v.Message, p1Messages) {
		return model.P1
	}

	// P2
	if severity == "warning" {
		return model.P2
	}
	if p2Categories[category] {
		return model.P2
	}
	if containsAny(v.Message, p2Messages) {
		return model.P2
	}

	// P3
	if p3Severities[severity] {
		return model.P3
	}
	if p3Categories[category] {
		return model.P3
	}

	// Fallback: unknown violation defaults to P2.
	return model.P2
}

// ImpactPromotion is the optional escalation from an external
// dependency-graph service's cross-service impact count (spec §4.3.1).
func ImpactPromotion(priority model.Priority, impactedNodes int) model.Priority {
	if impactedNodes >= 10 {
		return model.P0
	}
	if impactedNodes >= 3 {
		if priority == model.P0 {
			return priority
		}
		return model.P1
	}
	return priority
}
