// Package health implements C6: multi-endpoint readiness polling with
// consecutive-success gating, per spec §4.6.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"fleetctl/internal/logging"
)

// EndpointStatus is the final per-endpoint record returned by PollUntilHealthy.
type EndpointStatus struct {
	URL              string
	Healthy          bool
	LastStatusCode   int
	LastResponseTime time.Duration
	ConsecutiveOK    int
}

// Doer is the subset of *http.Client used by the poller, so tests can inject
// a fake transport without standing up a real listener for every case.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Poller polls a set of HTTP endpoints until each reaches the required
// number of consecutive 200 responses, or the overall timeout elapses.
type Poller struct {
	client Doer
}

// NewPoller creates a poller using http.DefaultClient.
func NewPoller() *Poller {
	return &Poller{client: http.DefaultClient}
}

// NewPollerWithClient creates a poller using a custom Doer (for tests).
func NewPollerWithClient(c Doer) *Poller {
	return &Poller{client: c}
}

type endpointState struct {
	url           string
	consecutiveOK int
	lastCode      int
	lastDuration  time.Duration
}

// PollUntilHealthy polls every endpoint on interval until each has returned
// HTTP 200 for requiredConsecutive successive polls, within timeout.
// Endpoints that already reached the threshold are not re-polled. Any
// non-200 or transport error resets that endpoint's consecutive counter to 0.
func (p *Poller) PollUntilHealthy(ctx context.Context, endpoints []string, timeout, interval time.Duration, requiredConsecutive int) (map[string]EndpointStatus, error) {
	log := logging.Get(logging.Health)

	states := make(map[string]*endpointState, len(endpoints))
	for _, ep := range endpoints {
		states[ep] = &endpointState{url: ep}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	allHealthy := func() bool {
		for _, s := range states {
			if s.consecutiveOK < requiredConsecutive {
				return false
			}
		}
		return true
	}

	poll := func() {
		var wg sync.WaitGroup
		for _, s := range states {
			if s.consecutiveOK >= requiredConsecutive {
				continue
			}
			wg.Add(1)
			go func(s *endpointState) {
				defer wg.Done()
				code, dur, err := p.checkOnce(ctx, s.url)
				s.lastCode = code
				s.lastDuration = dur
				if err != nil || code != http.StatusOK {
					s.consecutiveOK = 0
					log.Debugw("endpoint unhealthy", "url", s.url, "code", code, "err", err)
					return
				}
				s.consecutiveOK++
				log.Debugw("endpoint ok", "url", s.url, "consecutive", s.consecutiveOK)
			}(s)
		}
		wg.Wait()
	}

	// Poll immediately, then on each tick, so a fast-healthy fleet doesn't
	// wait a full interval before its first check.
	poll()
	for !allHealthy() {
		select {
		case <-ctx.Done():
			return buildResult(states, requiredConsecutive), p.timeoutError(states, requiredConsecutive)
		case <-ticker.C:
			poll()
		}
	}

	return buildResult(states, requiredConsecutive), nil
}

func (p *Poller) checkOnce(ctx context.Context, url string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	dur := time.Since(start)
	if err != nil {
		return 0, dur, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, dur, nil
}

func (p *Poller) timeoutError(states map[string]*endpointState, requiredConsecutive int) error {
	var unhealthy []string
	for url, s := range states {
		if s.consecutiveOK < requiredConsecutive {
			unhealthy = append(unhealthy, url)
		}
	}
	sort.Strings(unhealthy)
	return fmt.Errorf("health: timed out waiting for readiness, still unhealthy: %v", unhealthy)
}

func buildResult(states map[string]*endpointState, requiredConsecutive int) map[string]EndpointStatus {
	out := make(map[string]EndpointStatus, len(states))
	for url, s := range states {
		out[url] = EndpointStatus{
			URL:              url,
			Healthy:          s.consecutiveOK >= requiredConsecutive,
			LastStatusCode:   s.lastCode,
			LastResponseTime: s.lastDuration,
			ConsecutiveOK:    s.consecutiveOK,
		}
	}
	return out
}
