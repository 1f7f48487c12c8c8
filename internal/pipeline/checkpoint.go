package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"fleetctl/internal/logging"
	"fleetctl/internal/model"
)

// StateFileName is the well-known checkpoint file name under a run root.
const StateFileName = "pipeline_state.json"

// Store persists and loads PipelineState checkpoints for one run root,
// grounded on the teacher's saveCampaign/LoadCampaign pair but upgraded to
// the rename-after-write discipline spec §4.1 requires: the teacher writes
// its campaign JSON directly with os.WriteFile, which can leave a torn file
// on crash mid-write; a run's checkpoint must never be torn, so Save writes
// to a temporary sibling, fsyncs it, then renames it into place.
type Store struct {
	RunRoot string
}

func (s Store) path() string {
	return filepath.Join(s.RunRoot, StateFileName)
}

// Save writes state atomically: temp sibling file, fsync, rename.
func (s Store) Save(state *model.PipelineState) error {
	log := logging.Get(logging.Pipeline)

	if err := os.MkdirAll(s.RunRoot, 0o755); err != nil {
		return fmt.Errorf("pipeline: failed to create run root: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: failed to marshal state: %w", err)
	}

	target := s.path()
	tmp, err := os.CreateTemp(s.RunRoot, ".pipeline_state-*.tmp")
	if err != nil {
		return fmt.Errorf("pipeline: failed to create temp checkpoint file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("pipeline: failed to write temp checkpoint file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("pipeline: failed to fsync temp checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pipeline: failed to close temp checkpoint file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pipeline: failed to rename checkpoint into place: %w", err)
	}

	log.Debugw("checkpoint saved", "run_id", state.RunID, "phase", state.CurrentPhase)
	return nil
}

// Load reads the checkpoint at RunRoot. It returns ErrNoCheckpoint if the
// file does not exist, and ErrSchemaMismatch if the on-disk schema_version
// does not match CurrentSchemaVersion — in both cases the caller should
// start a fresh run rather than resume.
func (s Store) Load() (*model.PipelineState, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("pipeline: failed to read checkpoint: %w", err)
	}

	var state model.PipelineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("pipeline: failed to parse checkpoint: %w", err)
	}

	if state.SchemaVersion != model.CurrentSchemaVersion {
		return nil, ErrSchemaMismatch
	}
	return &state, nil
}
