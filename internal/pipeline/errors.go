package pipeline

import "errors"

var (
	// ErrSchemaMismatch is returned by Load when an on-disk state file's
	// schema_version does not match CurrentSchemaVersion; callers should
	// start fresh rather than resume.
	ErrSchemaMismatch = errors.New("pipeline: on-disk schema version does not match, starting fresh")

	// ErrNoCheckpoint is returned by Load when no state file exists yet.
	ErrNoCheckpoint = errors.New("pipeline: no checkpoint file present")

	// ErrCancelled is the failure reason recorded when a run stops because
	// its cancellation signal fired (interrupt or budget exhaustion).
	ErrCancelled = errors.New("pipeline: run cancelled")

	// ErrOutOfOrderPhase is returned by Advance when state.CurrentPhase is
	// not the phase that follows the last completed phase (or init when no
	// phase has completed yet), violating the advance precondition.
	ErrOutOfOrderPhase = errors.New("pipeline: current phase is not resumable from its recorded position")
)
