package rpcclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallbackDecomposeSlugifiesFirstLine(t *testing.T) {
	result := fallbackDecompose("  My Cool Project!! \n\nbody text\n")
	require.True(t, result.Fallback)
	require.Equal(t, "My Cool Project!!", result.ProjectName)
	require.Len(t, result.Services, 1)
	require.Equal(t, "my-cool-project", result.Services[0].ServiceID)
	require.Empty(t, result.Services[0].Domain)
}

func TestFallbackDecomposeSkipsBlankLeadingLines(t *testing.T) {
	result := fallbackDecompose("\n\n  Widget Factory\nmore text")
	require.Equal(t, "Widget Factory", result.ProjectName)
}

func TestFallbackDecomposeHandlesEmptyInput(t *testing.T) {
	result := fallbackDecompose("")
	require.Equal(t, "project", result.ProjectName)
	require.Equal(t, "project", result.Services[0].ServiceID)
}

func TestFallbackCodebaseMapSkipsVendorAndDotDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "y.go"), []byte("y"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0o644))

	result := fallbackCodebaseMap(root)
	require.True(t, result.Fallback)
	require.Contains(t, result.Files["go"], filepath.Join(root, "main.go"))
	require.NotContains(t, result.Files["javascript"], filepath.Join(root, "node_modules", "x.js"))
	for _, files := range result.Files {
		for _, f := range files {
			require.NotContains(t, f, ".git")
		}
	}
}

func TestFallbackContractsCollectsUnderKnownDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "contracts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "contracts", "a.json"), []byte(`{"k":"v"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "contracts", "b.yaml"), []byte("k: v"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "unrelated.json"), []byte(`{}`), 0o644))

	result := fallbackContracts(root)
	require.True(t, result.Fallback)
	require.Len(t, result.Contracts, 2)

	var jsonContract *Contract
	for i := range result.Contracts {
		if filepath.Ext(result.Contracts[i].Path) == ".json" {
			jsonContract = &result.Contracts[i]
		}
	}
	require.NotNil(t, jsonContract)
	require.Equal(t, "v", jsonContract.Body["k"])
}
