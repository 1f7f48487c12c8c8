package rpcclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPTransportDecodesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/decompose", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"project_name": "Widgets"})
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, 2*time.Second)
	var out DecompositionResult
	err := transport.Call(context.Background(), "decompose", map[string]any{"prd_text": "x"}, &out)
	require.NoError(t, err)
	require.Equal(t, "Widgets", out.ProjectName)
}

func TestHTTPTransportNotFoundIsNonexistent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, 2*time.Second)
	err := transport.Call(context.Background(), "nope", nil, nil)
	require.Error(t, err)
	ce, ok := err.(*CallError)
	require.True(t, ok)
	require.Equal(t, KindNonexistent, ce.Kind)
}

func TestHTTPTransportErrorStatusIsApplication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"code": "bad_input", "message": "missing field"})
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, 2*time.Second)
	err := transport.Call(context.Background(), "decompose", nil, nil)
	require.Error(t, err)
	ce, ok := err.(*CallError)
	require.True(t, ok)
	require.Equal(t, KindApplication, ce.Kind)
	require.Contains(t, ce.Error(), "missing field")
}

func TestHTTPTransportMalformedBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, 2*time.Second)
	var out DecompositionResult
	err := transport.Call(context.Background(), "decompose", nil, &out)
	require.Error(t, err)
	ce, ok := err.(*CallError)
	require.True(t, ok)
	require.Equal(t, KindMalformed, ce.Kind)
}

func TestHTTPTransportConnectionRefusedIsTransient(t *testing.T) {
	transport := NewHTTPTransport("http://127.0.0.1:1", 200*time.Millisecond)
	err := transport.Call(context.Background(), "decompose", nil, nil)
	require.Error(t, err)
	ce, ok := err.(*CallError)
	require.True(t, ok)
	require.Equal(t, KindTransient, ce.Kind)
}
