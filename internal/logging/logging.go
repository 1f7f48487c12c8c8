// Package logging provides category-scoped structured logging over zap.
//
// Every component in fleetctl logs through a category logger rather than
// the root logger directly, so log output can be filtered per component
// the way the pipeline's phases, the builder scheduler, and the fix-pass
// engine each reason about a distinct slice of the run.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Category names one of the logical subsystems of fleetctl.
type Category string

const (
	Pipeline  Category = "pipeline"
	Builder   Category = "builder"
	FixPass   Category = "fixpass"
	Scoring   Category = "scoring"
	RPC       Category = "rpcclient"
	Health    Category = "health"
	Cost      Category = "cost"
	Report    Category = "report"
	Snapshot  Category = "snapshot"
	CLI       Category = "cli"
)

var (
	mu     sync.RWMutex
	root   *zap.Logger
	cached = make(map[Category]*zap.SugaredLogger)
)

// Init installs the root zap logger used to build category loggers.
// Call once at process startup; safe to call again in tests to reset state.
func Init(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	cached = make(map[Category]*zap.SugaredLogger)
}

func ensureRoot() *zap.Logger {
	mu.RLock()
	r := root
	mu.RUnlock()
	if r != nil {
		return r
	}
	// Fall back to a no-frills production logger so components never need
	// a nil check just because Init hasn't run yet (e.g. unit tests).
	l, _ := zap.NewProduction()
	mu.Lock()
	if root == nil {
		root = l
	}
	r = root
	mu.Unlock()
	return r
}

// Get returns the sugared logger scoped to category, creating it on first use.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	l, ok := cached[category]
	mu.RUnlock()
	if ok {
		return l
	}

	base := ensureRoot()
	sugared := base.Sugar().With("category", string(category))

	mu.Lock()
	cached[category] = sugared
	mu.Unlock()
	return sugared
}

// Sync flushes the root logger. Call at process exit.
func Sync() {
	mu.RLock()
	r := root
	mu.RUnlock()
	if r != nil {
		_ = r.Sync()
	}
}
