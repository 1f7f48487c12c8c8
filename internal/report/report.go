// Package report renders the single human-readable audit document emitted at
// the end of a run, per spec §6: a fixed section structure (Executive
// Summary, Methodology, Per-System Assessment, Integration Assessment, Fix
// Pass History, Gap Analysis, Appendices) with markdown as the encoding.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"fleetctl/internal/config"
	"fleetctl/internal/model"
	"fleetctl/internal/scoring"
)

//go:embed audit_report.tmpl
var auditReportTemplate string

// FileName is the fixed basename the report is written under inside a run's
// output_dir, per spec §6. The extension names the encoding (markdown); the
// section structure itself is what's fixed.
const FileName = "SUPER_TEAM_AUDIT_REPORT.md"

// Generator renders Data into the fixed-structure markdown document.
type Generator struct {
	tmpl *template.Template
}

// NewGenerator parses the embedded template once; Generate/WriteToFile reuse it.
func NewGenerator() *Generator {
	funcMap := template.FuncMap{
		"pct":   func(f float64) string { return fmt.Sprintf("%.1f", f) },
		"upper": strings.ToUpper,
		"duration": func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	}
	tmpl := template.Must(
		template.New("audit").
			Delims("[[", "]]").
			Funcs(funcMap).
			Parse(auditReportTemplate),
	)
	return &Generator{tmpl: tmpl}
}

// systemRow is one Per-System Assessment table entry, sorted by ServiceID.
type systemRow struct {
	ServiceID string
	Domain    string
	Score     model.SystemScore
	Build     model.BuilderResult
}

// findingRow flattens a Finding for the Gap Analysis table.
type findingRow = model.Finding

// Data is the flattened, deterministically-ordered view of a PipelineState
// the template renders from. Every map-derived field is pre-sorted here so
// template iteration order never varies between runs on identical input.
type Data struct {
	RunID       string
	GeneratedAt time.Time
	Depth       config.Depth

	Systems        []systemRow
	Integration    model.IntegrationScore
	AggregateScore float64
	TrafficLight   model.TrafficLight
	Gate           scoring.GateResult

	FixPasses []model.FixPassResult

	OpenP0   []findingRow
	OpenP1   []findingRow
	OpenP2P3 []findingRow
	Resolved []findingRow
	// NoViolations is true when every Gap Analysis bucket is empty, the
	// clean-run case spec.md §8 names explicitly.
	NoViolations bool

	TotalCost  float64
	PhaseCosts []phaseCostRow

	MethodologyNote string
}

type phaseCostRow struct {
	Phase model.Phase
	Cost  float64
}

// BuildData flattens a PipelineState plus its config and gate verdict into
// the template's input shape, sorting every map-keyed collection for
// deterministic output.
func BuildData(state *model.PipelineState, cfg config.Config, gate scoring.GateResult) Data {
	serviceIDs := make([]string, 0, len(state.ServiceDescriptors))
	for id := range state.ServiceDescriptors {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	systems := make([]systemRow, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		systems = append(systems, systemRow{
			ServiceID: id,
			Domain:    state.ServiceDescriptors[id].Domain,
			Score:     state.Scores[id],
			Build:     state.BuilderResults[id],
		})
	}

	phaseRank := make(map[model.Phase]int, len(model.Order))
	for i, p := range model.Order {
		phaseRank[p] = i
	}
	phases := make([]phaseCostRow, 0, len(state.PhaseCosts))
	for p, c := range state.PhaseCosts {
		phases = append(phases, phaseCostRow{Phase: p, Cost: c})
	}
	sort.Slice(phases, func(i, j int) bool { return phaseRank[phases[i].Phase] < phaseRank[phases[j].Phase] })

	var openP0, openP1, openP2P3, resolved []findingRow
	for _, f := range state.Findings {
		if f.Resolution != model.Open {
			resolved = append(resolved, f)
			continue
		}
		switch f.Priority {
		case model.P0:
			openP0 = append(openP0, f)
		case model.P1:
			openP1 = append(openP1, f)
		default:
			openP2P3 = append(openP2P3, f)
		}
	}
	sortFindings := func(rows []findingRow) {
		sort.Slice(rows, func(i, j int) bool { return rows[i].FindingID < rows[j].FindingID })
	}
	sortFindings(openP0)
	sortFindings(openP1)
	sortFindings(openP2P3)
	sortFindings(resolved)

	noViolations := len(openP0) == 0 && len(openP1) == 0 && len(openP2P3) == 0 && len(resolved) == 0

	return Data{
		RunID:           state.RunID,
		GeneratedAt:     state.UpdatedAt,
		Depth:           cfg.Depth,
		Systems:         systems,
		Integration:     state.Integration,
		AggregateScore:  state.AggregateScore,
		TrafficLight:    state.TrafficLight,
		Gate:            gate,
		FixPasses:       state.FixPasses,
		OpenP0:          openP0,
		OpenP1:          openP1,
		OpenP2P3:        openP2P3,
		Resolved:        resolved,
		NoViolations:    noViolations,
		TotalCost:       state.TotalCost,
		PhaseCosts:      phases,
		MethodologyNote: methodologyNote(cfg),
	}
}

func methodologyNote(cfg config.Config) string {
	return fmt.Sprintf(
		"Depth %s; up to %d concurrent builders; up to %d fix passes; budget ceiling $%.2f.",
		cfg.Depth, cfg.MaxConcurrentBuilders, cfg.MaxFixPasses, cfg.MaxBudgetUSD,
	)
}

// Generate renders the report to a string without touching the filesystem.
func (g *Generator) Generate(data Data) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("report: executing template: %w", err)
	}
	return buf.String(), nil
}

// WriteToFile renders the report and writes it to outputDir/FileName,
// creating outputDir if necessary.
func (g *Generator) WriteToFile(outputDir string, data Data) (string, error) {
	rendered, err := g.Generate(data)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("report: creating %q: %w", outputDir, err)
	}
	path := filepath.Join(outputDir, FileName)
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("report: writing %q: %w", path, err)
	}
	return path, nil
}
