package health_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"fleetctl/internal/health"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func noKeepAliveClient() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
}

func TestPollUntilHealthySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := health.NewPollerWithClient(noKeepAliveClient())
	result, err := p.PollUntilHealthy(context.Background(), []string{srv.URL}, 5*time.Second, 20*time.Millisecond, 2)
	require.NoError(t, err)
	require.True(t, result[srv.URL].Healthy)
	require.GreaterOrEqual(t, result[srv.URL].ConsecutiveOK, 2)
}

func TestPollResetsConsecutiveOnFailure(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&n, 1)
		// Fail the second poll, then succeed forever after, so the
		// consecutive counter must reset rather than accumulate past it.
		if count == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := health.NewPollerWithClient(noKeepAliveClient())
	result, err := p.PollUntilHealthy(context.Background(), []string{srv.URL}, 5*time.Second, 15*time.Millisecond, 3)
	require.NoError(t, err)
	require.True(t, result[srv.URL].Healthy)
}

func TestPollTimeoutNamesUnhealthyEndpoints(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	p := health.NewPollerWithClient(noKeepAliveClient())
	result, err := p.PollUntilHealthy(context.Background(), []string{down.URL, up.URL}, 80*time.Millisecond, 10*time.Millisecond, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), down.URL)
	require.True(t, result[up.URL].Healthy)
	require.False(t, result[down.URL].Healthy)
}
