package rpcclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticTransport struct {
	err    error
	result DecompositionResult
}

func (s *staticTransport) Call(ctx context.Context, operation string, args map[string]any, out any) error {
	if s.err != nil {
		return s.err
	}
	if dst, ok := out.(*DecompositionResult); ok {
		*dst = s.result
	}
	return nil
}

func TestDecomposerUsesFallbackWhenTransportUnreachable(t *testing.T) {
	transport := &staticTransport{err: transientError(context.DeadlineExceeded)}
	env := NewEnvelope(transport, "decomposer", 1, time.Millisecond)
	d := &Decomposer{Envelope: env}

	result, err := d.Decompose(context.Background(), "My Project\nbody")
	require.NoError(t, err)
	require.True(t, result.Fallback)
	require.Equal(t, "My Project", result.ProjectName)
}

func TestDecomposerPassesThroughSuccessfulResponse(t *testing.T) {
	transport := &staticTransport{result: DecompositionResult{
		ProjectName: "Real Project",
		Services:    []ServiceSkeleton{{ServiceID: "svc-a"}},
	}}
	env := NewEnvelope(transport, "decomposer", 1, time.Millisecond)
	d := &Decomposer{Envelope: env}

	result, err := d.Decompose(context.Background(), "ignored")
	require.NoError(t, err)
	require.False(t, result.Fallback)
	require.Equal(t, "Real Project", result.ProjectName)
}

type emptyMapTransport struct{}

func (emptyMapTransport) Call(ctx context.Context, operation string, args map[string]any, out any) error {
	return nil
}

func TestCodeIntelFallsBackOnEmptyResponse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	env := NewEnvelope(emptyMapTransport{}, "code-intel", 1, time.Millisecond)
	c := &CodeIntel{Envelope: env, ProjectRoot: dir}

	result, err := c.CodebaseMap(context.Background())
	require.NoError(t, err)
	require.True(t, result.Fallback)
	require.Contains(t, result.Files["go"], filepath.Join(dir, "main.go"))
}

func TestContractRegistryFallsBackOnEmptyResponse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "contracts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "contracts", "a.json"), []byte(`{}`), 0o644))

	env := NewEnvelope(emptyMapTransport{}, "contract-registry", 1, time.Millisecond)
	r := &ContractRegistry{Envelope: env, ProjectRoot: dir}

	result, err := r.ListContracts(context.Background())
	require.NoError(t, err)
	require.True(t, result.Fallback)
	require.Len(t, result.Contracts, 1)
}
