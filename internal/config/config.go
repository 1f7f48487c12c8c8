// Package config loads and validates the fleetctl run configuration.
//
// Configuration errors are fatal at startup (spec §7): Load validates every
// field and returns an error before the pipeline state machine ever sees a
// Config, rather than surfacing a bad field mid-run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Depth is the overall analysis depth policy.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthThorough Depth = "thorough"
)

// RPCEndpoints names the base URLs of the three external analysis services.
type RPCEndpoints struct {
	Decomposer       string `yaml:"decomposer_url"`
	ContractRegistry string `yaml:"contract_registry_url"`
	CodeIntel        string `yaml:"code_intel_url"`
}

// Config is the structured configuration record described in spec §6.
type Config struct {
	MaxConcurrentBuilders int   `yaml:"max_concurrent_builders"`
	BuilderTimeoutS       int   `yaml:"builder_timeout_s"`
	MaxFixPasses          int   `yaml:"max_fix_passes"`
	FixEffectivenessFloor float64 `yaml:"fix_effectiveness_floor"`
	RegressionRateCeiling float64 `yaml:"regression_rate_ceiling"`
	MaxBudgetUSD          float64 `yaml:"max_budget_usd"`

	HealthCheckTimeoutS  int `yaml:"health_check_timeout_s"`
	HealthCheckIntervalS int `yaml:"health_check_interval_s"`

	MCPStartupTimeoutMs    int `yaml:"mcp_startup_timeout_ms"`
	MCPToolTimeoutMs       int `yaml:"mcp_tool_timeout_ms"`
	MCPFirstStartTimeoutMs int `yaml:"mcp_first_start_timeout_ms"`

	Depth Depth `yaml:"depth"`

	RunRoot     string       `yaml:"run_root"`
	ProjectRoot string       `yaml:"project_root"`
	Services    RPCEndpoints `yaml:"services"`

	// BuilderBinary/BuilderArgs name the opaque code-generation subprocess
	// invoked once per service by C2, and reinvoked in "fix" / "rescan" mode
	// by C3's default fixer/rescanner (spec §4.3.5 step 4: "a subprocess
	// builder scoped to each project root").
	BuilderBinary string   `yaml:"builder_binary"`
	BuilderArgs   []string `yaml:"builder_args"`

	// RPC retry/backoff settings passed to every rpcclient.Envelope.
	RPCMaxRetries  int           `yaml:"rpc_max_retries"`
	RPCBackoffBase time.Duration `yaml:"rpc_backoff_base"`

	RequiredConsecutiveHealthy int `yaml:"required_consecutive_healthy"`
}

// Default returns the configuration with every spec-mandated default applied.
func Default() Config {
	return Config{
		MaxConcurrentBuilders:      3,
		BuilderTimeoutS:            1800,
		MaxFixPasses:               5,
		FixEffectivenessFloor:      0.30,
		RegressionRateCeiling:      0.25,
		MaxBudgetUSD:               100,
		HealthCheckTimeoutS:        120,
		HealthCheckIntervalS:       3,
		MCPStartupTimeoutMs:        30000,
		MCPToolTimeoutMs:           30000,
		MCPFirstStartTimeoutMs:     60000,
		Depth:                      DepthStandard,
		RPCMaxRetries:              3,
		RPCBackoffBase:             time.Second,
		RequiredConsecutiveHealthy: 2,
	}
}

// Load reads a YAML configuration file, applying Default() for any field
// the file omits (a field the file sets explicitly, even to zero, keeps the
// file's value), then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	// Unmarshal onto the already-populated defaults so omitted fields keep
	// their default rather than zeroing out.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field required for a safe run. A Validate failure
// is a configuration error per spec §7: fatal, before any phase runs.
func Validate(cfg Config) error {
	if cfg.RunRoot == "" {
		return fmt.Errorf("config: run_root is required")
	}
	if cfg.ProjectRoot == "" {
		return fmt.Errorf("config: project_root is required")
	}
	if cfg.BuilderBinary == "" {
		return fmt.Errorf("config: builder_binary is required")
	}
	if cfg.MaxConcurrentBuilders <= 0 {
		return fmt.Errorf("config: max_concurrent_builders must be positive")
	}
	if cfg.BuilderTimeoutS <= 0 {
		return fmt.Errorf("config: builder_timeout_s must be positive")
	}
	if cfg.MaxFixPasses < 0 {
		return fmt.Errorf("config: max_fix_passes must not be negative")
	}
	if cfg.FixEffectivenessFloor < 0 || cfg.FixEffectivenessFloor > 1 {
		return fmt.Errorf("config: fix_effectiveness_floor must be in [0,1]")
	}
	if cfg.RegressionRateCeiling < 0 || cfg.RegressionRateCeiling > 1 {
		return fmt.Errorf("config: regression_rate_ceiling must be in [0,1]")
	}
	if cfg.MaxBudgetUSD < 0 {
		return fmt.Errorf("config: max_budget_usd must not be negative")
	}
	if cfg.HealthCheckTimeoutS <= 0 {
		return fmt.Errorf("config: health_check_timeout_s must be positive")
	}
	if cfg.HealthCheckIntervalS <= 0 {
		return fmt.Errorf("config: health_check_interval_s must be positive")
	}
	switch cfg.Depth {
	case DepthQuick, DepthStandard, DepthThorough:
	default:
		return fmt.Errorf("config: depth %q is not one of quick|standard|thorough", cfg.Depth)
	}
	if cfg.RequiredConsecutiveHealthy <= 0 {
		return fmt.Errorf("config: required_consecutive_healthy must be positive")
	}
	return nil
}
