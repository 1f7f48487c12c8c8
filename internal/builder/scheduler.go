package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"fleetctl/internal/logging"
	"fleetctl/internal/model"
)

// Dispatcher is the thing a Scheduler hands each service to. The production
// implementation is SubprocessDispatcher; tests substitute a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, serviceID string, cmd Command) model.BuilderResult
}

// CommandBuilder turns a service descriptor plus its isolated output
// directory into the concrete subprocess invocation. Supplied by the
// pipeline layer, which knows the builder binary, the PRD slice, contract
// stubs and any prior-pass failure context (spec §4.2 step 2).
type CommandBuilder func(svc model.ServiceDescriptor, outputDir string) Command

// Scheduler runs a bounded number of builder subprocesses concurrently,
// grounded on the teacher's errgroup.WithContext + semaphore fan-out
// pattern (internal/campaign/intelligence_gatherer.go).
type Scheduler struct {
	Dispatcher    Dispatcher
	MaxConcurrent int
	RunRoot       string
	BuildCommand  CommandBuilder
}

// Run builds every service in services, at most MaxConcurrent at a time,
// and returns one BuilderResult per service_id. A single service's failure
// (subprocess error, missing state file, cross-contamination) never aborts
// the rest — it surfaces as a Success=false BuilderResult, per spec §4.2's
// per-service error isolation.
func (s *Scheduler) Run(ctx context.Context, services []model.ServiceDescriptor) (map[string]model.BuilderResult, error) {
	log := logging.Get(logging.Builder)

	maxConcurrent := s.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)

	results := make(map[string]model.BuilderResult, len(services))
	resultsCh := make(chan model.BuilderResult, len(services))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-egCtx.Done():
				return egCtx.Err()
			}
			defer func() { <-sem }()

			outputDir := filepath.Join(s.RunRoot, svc.ServiceID)
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				resultsCh <- model.BuilderResult{
					ServiceID: svc.ServiceID,
					OutputDir: outputDir,
					Error:     fmt.Sprintf("failed to create output dir: %v", err),
				}
				return nil
			}

			cmd := s.BuildCommand(svc, outputDir)
			cmd.WorkingDirectory = outputDir

			log.Infow("dispatching builder", "service_id", svc.ServiceID, "output_dir", outputDir)
			result := s.Dispatcher.Dispatch(egCtx, svc.ServiceID, cmd)

			if result.Success {
				if violation := crossContaminationCheck(svc.ServiceID, outputDir, result.Artifacts); violation != "" {
					result.Success = false
					result.Error = violation
				}
			}

			resultsCh <- result
			return nil
		})
	}

	// Fan-out goroutines never return an error themselves (failures are
	// captured per-service in resultsCh); Wait only surfaces context
	// cancellation from the semaphore-acquire select.
	err := eg.Wait()
	close(resultsCh)
	for r := range resultsCh {
		results[r.ServiceID] = r
	}
	if err != nil {
		return results, err
	}
	return results, nil
}

// crossContaminationCheck returns a non-empty error string if any artifact
// path escapes the service's own output directory, per spec §4.2's
// isolation invariant.
func crossContaminationCheck(serviceID, outputDir string, artifacts []string) string {
	root := filepath.Clean(outputDir)
	for _, a := range artifacts {
		if filepath.IsAbs(a) {
			clean := filepath.Clean(a)
			if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
				return fmt.Sprintf("artifact %q for service %q escapes its output directory %q", a, serviceID, outputDir)
			}
			continue
		}
		if strings.HasPrefix(filepath.Clean(a), "..") {
			return fmt.Sprintf("artifact %q for service %q escapes its output directory via relative path", a, serviceID)
		}
	}
	return ""
}
