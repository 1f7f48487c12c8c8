package pipeline

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"fleetctl/internal/logging"
	"fleetctl/internal/model"
)

// Watcher streams checkpoint updates for `fleetctl status --watch`, grounded
// on the teacher's fsnotify-based MangleWatcher: watch the run root, filter
// to the one checkpoint file, debounce-free here since callers reload the
// whole state on each event rather than patching it incrementally.
type Watcher struct {
	Store Store
}

// Watch blocks, emitting a freshly loaded PipelineState on states each time
// the checkpoint file changes, until ctx is cancelled. Emission is
// best-effort: a state that fails to load or parse (e.g. observed mid
// rename-after-write, which should not occur but is cheap to guard) is
// skipped rather than reported as an error.
func (w Watcher) Watch(ctx context.Context, states chan<- *model.PipelineState) error {
	log := logging.Get(logging.Pipeline)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.Store.RunRoot); err != nil {
		return err
	}

	if state, err := w.Store.Load(); err == nil {
		select {
		case states <- state:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	target := filepath.Join(w.Store.RunRoot, StateFileName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			state, err := w.Store.Load()
			if err != nil {
				log.Debugw("skipping unreadable checkpoint during watch", "err", err)
				continue
			}
			select {
			case states <- state:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watch error", "err", err)
		}
	}
}
