// Package model defines the data types shared by every fleetctl component:
// the service/builder/finding records that flow from decomposition through
// building, fix-passing, scoring, and reporting.
package model

import "time"

// ServiceStatus is the lifecycle state of a ServiceDescriptor.
type ServiceStatus string

const (
	ServicePending   ServiceStatus = "pending"
	ServiceBuilding  ServiceStatus = "building"
	ServiceBuilt     ServiceStatus = "built"
	ServiceDeploying ServiceStatus = "deploying"
	ServiceHealthy   ServiceStatus = "healthy"
	ServiceUnhealthy ServiceStatus = "unhealthy"
	ServiceFailed    ServiceStatus = "failed"
)

// ServiceDescriptor is one service the pipeline must build, per spec §3.
type ServiceDescriptor struct {
	ServiceID      string            `json:"service_id"`
	Domain         string            `json:"domain"`
	Stack          map[string]string `json:"stack"`
	Port           int               `json:"port"`
	HealthEndpoint string            `json:"health_endpoint"`
	EstimatedLOC   int               `json:"estimated_loc"`
	OutputDir      string            `json:"output_dir"`
	Status         ServiceStatus     `json:"status"`
}

// BuilderResult is the outcome of one builder invocation, per spec §3.
type BuilderResult struct {
	SystemID          string   `json:"system_id"`
	ServiceID         string   `json:"service_id"`
	Success           bool     `json:"success"`
	Cost              float64  `json:"cost"`
	Error             string   `json:"error"`
	OutputDir         string   `json:"output_dir"`
	TestPassed        int      `json:"test_passed"`
	TestTotal         int      `json:"test_total"`
	ConvergenceRatio  float64  `json:"convergence_ratio"`
	Artifacts         []string `json:"artifacts"`
}

// Priority is a finding's severity bucket, per spec §4.3.1.
type Priority string

const (
	P0 Priority = "P0"
	P1 Priority = "P1"
	P2 Priority = "P2"
	P3 Priority = "P3"
)

// Resolution is the lifecycle state of a Finding.
type Resolution string

const (
	Open     Resolution = "open"
	Fixed    Resolution = "fixed"
	WontFix  Resolution = "wontfix"
)

// Finding is a single defect observation, per spec §3.
type Finding struct {
	FindingID      string     `json:"finding_id"`
	Priority       Priority   `json:"priority"`
	System         string     `json:"system"`
	Component      string     `json:"component"`
	Evidence       string     `json:"evidence"`
	Recommendation string     `json:"recommendation"`
	Resolution     Resolution `json:"resolution"`
	FixPassNumber  int        `json:"fix_pass_number"`
	FixVerification string    `json:"fix_verification"`
	CreatedAt      time.Time  `json:"created_at"`

	// ScanCode and FilePath back the ViolationSnapshot view of this finding
	// (see internal/snapshot). A finding that never came from a file-scoped
	// scanner may leave FilePath empty.
	ScanCode string `json:"scan_code"`
	FilePath string `json:"file_path"`
}

// Verdict is the outcome of a scan layer or the overall quality gate.
type Verdict string

const (
	Passed  Verdict = "passed"
	Failed  Verdict = "failed"
	Partial Verdict = "partial"
	Skipped Verdict = "skipped"
)

// VerificationMethod names how a LayerResult's verdict was produced. This is
// additive detail (see SPEC_FULL §4) not named by spec.md's LayerResult but
// consistent with it.
type VerificationMethod string

const (
	VerifyTestsPass     VerificationMethod = "tests_pass"
	VerifyBuilds        VerificationMethod = "builds"
	VerifyContractCheck VerificationMethod = "contract_check"
	VerifyManualReview  VerificationMethod = "manual_review"
	VerifyNone          VerificationMethod = "none"
)

// ContractViolation is a single contract-compliance failure surfaced by a
// quality gate layer (e.g. Layer2 integration checks).
type ContractViolation struct {
	ServiceID   string `json:"service_id"`
	ContractID  string `json:"contract_id"`
	Description string `json:"description"`
}

// LayerResult is the outcome of one quality-gate layer, per spec §3.
type LayerResult struct {
	Layer              string              `json:"layer"`
	Method             VerificationMethod  `json:"method"`
	Verdict            Verdict             `json:"verdict"`
	Total              int                 `json:"total"`
	PassedChecks       int                 `json:"passed_checks"`
	Duration           time.Duration       `json:"duration"`
	Violations         []Finding           `json:"violations"`
	ContractViolations []ContractViolation `json:"contract_violations"`
}

// QualityGateReport is the layered scan output for one quality-gate pass.
type QualityGateReport struct {
	Layers             map[string]LayerResult `json:"layers"`
	OverallVerdict      Verdict               `json:"overall_verdict"`
	FixAttempts         int                   `json:"fix_attempts"`
	MaxFixAttempts      int                   `json:"max_fix_attempts"`
	TotalViolations     int                   `json:"total_violations"`
	BlockingViolations  int                   `json:"blocking_violations"`
}

// FixPassStep names one of the six ordered steps of a fix pass.
type FixPassStep string

const (
	StepDiscover FixPassStep = "discover"
	StepClassify FixPassStep = "classify"
	StepGenerate FixPassStep = "generate"
	StepApply    FixPassStep = "apply"
	StepVerify   FixPassStep = "verify"
	StepRegress  FixPassStep = "regress"
)

// OrderedSteps is the canonical six-step cycle in execution order.
var OrderedSteps = []FixPassStep{StepDiscover, StepClassify, StepGenerate, StepApply, StepVerify, StepRegress}

// FixPassStatus is the lifecycle state of a FixPassResult.
type FixPassStatus string

const (
	FixPassPending    FixPassStatus = "pending"
	FixPassInProgress FixPassStatus = "in_progress"
	FixPassCompleted  FixPassStatus = "completed"
	FixPassFailed     FixPassStatus = "failed"
)

// StopReason names why the fix-pass loop stopped, per spec §4.3.4.
type StopReason string

const (
	ReasonNone                 StopReason = ""
	ReasonAllCriticalResolved  StopReason = "all_critical_resolved"
	ReasonPassLimit            StopReason = "pass_limit"
	ReasonBudgetExhausted      StopReason = "budget_exhausted"
	ReasonLowEffectiveness     StopReason = "low_effectiveness"
	ReasonHighRegression       StopReason = "high_regression"
	ReasonConvergenceThreshold StopReason = "convergence_threshold"
	ReasonSoftConvergence      StopReason = "soft_convergence"
	ReasonContinue             StopReason = "continue"
)

// FixPassMetrics are the per-pass metrics computed per spec §4.3.3.
type FixPassMetrics struct {
	FixedCount        int     `json:"fixed_count"`
	FixEffectiveness  float64 `json:"fix_effectiveness"`
	RegressionRate    float64 `json:"regression_rate"`
	NewDefectCount    int     `json:"new_defect_count"`
	ScoreDelta        float64 `json:"score_delta"`
	ConvergenceScore  float64 `json:"convergence_score"`
}

// FixPassResult is one fix-pass iteration's outcome, per spec §3.
type FixPassResult struct {
	PassNumber      int                     `json:"pass_number"`
	Status          FixPassStatus           `json:"status"`
	StepsCompleted  []FixPassStep           `json:"steps_completed"`
	CountsByPriority map[Priority]int       `json:"counts_by_priority"`
	Generated       int                     `json:"generated"`
	Applied         int                     `json:"applied"`
	Verified        int                     `json:"verified"`
	RegressionCount int                     `json:"regression_count"`
	Metrics         FixPassMetrics          `json:"metrics"`
	StopReason      StopReason              `json:"stop_reason"`
	ShouldStop      bool                    `json:"should_stop"`
	Cost            float64                 `json:"cost"`
	Duration        time.Duration           `json:"duration"`
	SnapshotBefore  map[string][]string     `json:"snapshot_before"`
	SnapshotAfter   map[string][]string     `json:"snapshot_after"`
}

// TrafficLight is the Red/Yellow/Green verdict derived from aggregate score.
type TrafficLight string

const (
	Green  TrafficLight = "green"
	Yellow TrafficLight = "yellow"
	Red    TrafficLight = "red"
)

// Phase is one stage of the pipeline state machine, per spec §4.1.
type Phase string

const (
	PhaseInit              Phase = "init"
	PhaseDecompose         Phase = "decompose"
	PhaseContractsRegister Phase = "contracts_register"
	PhaseBuildersRun       Phase = "builders_run"
	PhaseIntegrate         Phase = "integrate"
	PhaseQualityGate       Phase = "quality_gate"
	PhaseFixPass           Phase = "fix_pass"
	PhaseComplete          Phase = "complete"
	PhaseFailed            Phase = "failed"
)

// Order is the fixed sequence of non-terminal phases.
var Order = []Phase{
	PhaseInit,
	PhaseDecompose,
	PhaseContractsRegister,
	PhaseBuildersRun,
	PhaseIntegrate,
	PhaseQualityGate,
	PhaseFixPass,
}

// SystemScore is the per-service weighted score, per spec §4.4.
type SystemScore struct {
	FunctionalCompleteness float64 `json:"functional_completeness"`
	TestHealth             float64 `json:"test_health"`
	ContractCompliance     float64 `json:"contract_compliance"`
	CodeQuality            float64 `json:"code_quality"`
	DockerHealth           float64 `json:"docker_health"`
	Documentation          float64 `json:"documentation"`
	Total                  float64 `json:"total"`
}

// IntegrationScore is the cross-service score, per spec §4.4.
type IntegrationScore struct {
	MCPConnectivity     float64 `json:"mcp_connectivity"`
	DataFlowIntegrity   float64 `json:"data_flow_integrity"`
	ContractFidelity    float64 `json:"contract_fidelity"`
	PipelineCompletion  float64 `json:"pipeline_completion"`
	Total               float64 `json:"total"`
}

// PipelineState is the single persisted run record, per spec §3.
type PipelineState struct {
	SchemaVersion   int                        `json:"schema_version"`
	RunID           string                     `json:"run_id"`
	CurrentPhase    Phase                      `json:"current_phase"`
	CompletedPhases []Phase                    `json:"completed_phases"`

	ServiceDescriptors map[string]ServiceDescriptor `json:"service_descriptors"`
	MCPHealth          map[string]bool              `json:"mcp_health"`
	BuilderResults     map[string]BuilderResult     `json:"builder_results"`

	Findings  []Finding       `json:"findings"`
	FixPasses []FixPassResult `json:"fix_passes"`

	Scores         map[string]SystemScore `json:"scores"`
	Integration    IntegrationScore       `json:"integration"`
	AggregateScore float64                `json:"aggregate_score"`
	TrafficLight   TrafficLight           `json:"traffic_light"`

	TotalCost  float64            `json:"total_cost"`
	PhaseCosts map[Phase]float64  `json:"phase_costs"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FailureReason string `json:"failure_reason,omitempty"`
}

// CurrentSchemaVersion is bumped whenever PipelineState's on-disk shape
// changes in a way that is not forward-compatible.
const CurrentSchemaVersion = 1

// NewPipelineState creates a fresh, empty run record.
func NewPipelineState(runID string, now time.Time) *PipelineState {
	return &PipelineState{
		SchemaVersion:      CurrentSchemaVersion,
		RunID:              runID,
		CurrentPhase:       PhaseInit,
		CompletedPhases:    []Phase{},
		ServiceDescriptors: make(map[string]ServiceDescriptor),
		MCPHealth:          make(map[string]bool),
		BuilderResults:     make(map[string]BuilderResult),
		Findings:           []Finding{},
		FixPasses:          []FixPassResult{},
		Scores:             make(map[string]SystemScore),
		PhaseCosts:         make(map[Phase]float64),
		StartedAt:          now,
		UpdatedAt:          now,
	}
}
