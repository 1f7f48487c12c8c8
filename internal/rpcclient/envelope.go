package rpcclient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"fleetctl/internal/logging"
)

// Transport performs one raw call to a named operation on a service,
// classifying its outcome into the error taxonomy of spec §4.5. A
// successful call returns nil and leaves the result decoded into out.
type Transport interface {
	Call(ctx context.Context, operation string, args map[string]any, out any) error
}

// Envelope wraps a Transport with the uniform retry/backoff/circuit-breaker
// policy spec §4.5 requires of every RPC client.
type Envelope struct {
	Transport   Transport
	MaxRetries  int
	BackoffBase time.Duration
	Breaker     *gobreaker.CircuitBreaker
	Category    logging.Category
	ServiceName string
}

// NewEnvelope builds an Envelope with a circuit breaker named after the
// service, grounded on the teacher's MCPClientManager's per-server
// connection state (here realised as an explicit breaker instead of a
// hand-rolled connected/disconnected bool, since gobreaker is in the
// example pack's go.mod and gives the same half-open retry-after-cooldown
// behaviour with less bespoke state).
func NewEnvelope(transport Transport, serviceName string, maxRetries int, backoffBase time.Duration) *Envelope {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Envelope{
		Transport:   transport,
		MaxRetries:  maxRetries,
		BackoffBase: backoffBase,
		Breaker:     breaker,
		Category:    logging.RPC,
		ServiceName: serviceName,
	}
}

// Call executes operation with retry/backoff/circuit-breaking and returns
// the safe-default behaviour of spec §4.5: transient and malformed outcomes
// never propagate past exhausted retries, they log and return nil with out
// left at its zero value; application and nonexistent outcomes are
// returned to the caller immediately, unretried.
func (e *Envelope) Call(ctx context.Context, operation string, args map[string]any, out any) error {
	log := logging.Get(e.Category)

	var lastErr error
	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.BackoffBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}

		var callErr error
		_, breakerErr := e.Breaker.Execute(func() (any, error) {
			callErr = e.Transport.Call(ctx, operation, args, out)
			// Only transient outcomes count as breaker failures: an
			// application or malformed response means the service is up
			// and answering, just not usefully, so it must not trip the
			// breaker the way a string of connection refusals should.
			if callErr != nil && retriable(callErr) {
				return nil, callErr
			}
			return nil, nil
		})
		if callErr == nil && breakerErr == nil {
			return nil
		}
		if breakerErr != nil && callErr == nil {
			// Breaker itself refused the call (open/too-many-requests).
			lastErr = transientError(breakerErr)
			if errors.Is(breakerErr, gobreaker.ErrOpenState) {
				// An open breaker refuses every attempt until its cooldown
				// ends, so retrying within this call cannot succeed.
				break
			}
		} else {
			lastErr = callErr
		}

		if !retriable(lastErr) {
			break
		}
		log.Warnw("rpc transient failure, retrying", "service", e.ServiceName, "operation", operation, "attempt", attempt, "err", lastErr)
	}

	if lastErr == nil {
		return nil
	}
	if ce, ok := lastErr.(*CallError); ok && (ce.Kind == KindApplication || ce.Kind == KindNonexistent) {
		return lastErr
	}
	log.Errorw("rpc call failed, returning safe default", "service", e.ServiceName, "operation", operation, "err", lastErr)
	return nil
}
