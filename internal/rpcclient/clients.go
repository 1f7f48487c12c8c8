package rpcclient

import (
	"context"
	"time"
)

// DecompositionResult is the decomposer service's PRD-breakdown response.
type DecompositionResult struct {
	ProjectName string            `json:"project_name"`
	Services    []ServiceSkeleton `json:"services"`
	Fallback    bool              `json:"fallback"`
}

// ServiceSkeleton is one service entry in a DecompositionResult.
type ServiceSkeleton struct {
	ServiceID  string            `json:"service_id"`
	Domain     string            `json:"domain"`
	DomainModel map[string]any   `json:"domain_model"`
}

// CodebaseMap is the code-intel service's file-inventory response.
type CodebaseMap struct {
	Files    map[string][]string `json:"files"` // language -> file paths
	Fallback bool                `json:"fallback"`
}

// ContractListing is the contract-registry service's response.
type ContractListing struct {
	Contracts []Contract `json:"contracts"`
	Fallback  bool       `json:"fallback"`
}

// Contract is one contract document, parsed where possible.
type Contract struct {
	Path string         `json:"path"`
	Body map[string]any `json:"body,omitempty"`
}

// Decomposer wraps the PRD-decomposition service, with a filesystem
// fallback engaged when the primary call is unreachable.
type Decomposer struct {
	Envelope    *Envelope
	ProjectRoot string
}

func (d *Decomposer) Decompose(ctx context.Context, prdText string) (DecompositionResult, error) {
	var result DecompositionResult
	err := d.Envelope.Call(ctx, "decompose", map[string]any{"prd_text": prdText}, &result)
	if err != nil {
		// Application/nonexistent errors are a service-reported failure —
		// spec §4.5's "returns an error payload" case — so fall back too.
		return fallbackDecompose(prdText), nil
	}
	if isEmptyDecomposition(result) {
		return fallbackDecompose(prdText), nil
	}
	result.Fallback = false
	return result, nil
}

func isEmptyDecomposition(r DecompositionResult) bool {
	return r.ProjectName == "" && len(r.Services) == 0
}

// CodeIntel wraps the codebase-map service, with a filesystem fallback.
type CodeIntel struct {
	Envelope    *Envelope
	ProjectRoot string
}

func (c *CodeIntel) CodebaseMap(ctx context.Context) (CodebaseMap, error) {
	var result CodebaseMap
	err := c.Envelope.Call(ctx, "codebase_map", nil, &result)
	if err != nil {
		return fallbackCodebaseMap(c.ProjectRoot), nil
	}
	if len(result.Files) == 0 {
		return fallbackCodebaseMap(c.ProjectRoot), nil
	}
	result.Fallback = false
	return result, nil
}

// ContractRegistry wraps the contract-listing service, with a filesystem
// fallback.
type ContractRegistry struct {
	Envelope    *Envelope
	ProjectRoot string
}

func (r *ContractRegistry) ListContracts(ctx context.Context) (ContractListing, error) {
	var result ContractListing
	err := r.Envelope.Call(ctx, "list_contracts", nil, &result)
	if err != nil {
		return fallbackContracts(r.ProjectRoot), nil
	}
	if len(result.Contracts) == 0 {
		return fallbackContracts(r.ProjectRoot), nil
	}
	result.Fallback = false
	return result, nil
}

// DefaultTimeout is used by callers that don't derive a per-operation
// timeout from config.
const DefaultTimeout = 30 * time.Second
