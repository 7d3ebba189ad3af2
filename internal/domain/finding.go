// Package domain provides core types for the review loop.
package domain

// Pass identifies one named review dimension.
type Pass string

const (
	PassImplementation Pass = "implementation"
	PassSecurity       Pass = "security"
	PassQuality        Pass = "quality"
	PassUX             Pass = "ux"
	PassGrowth         Pass = "growth"
	PassOps            Pass = "ops"
)

// RequiredPasses lists the passes every valid agent output must contain,
// each exactly once, in canonical order.
var RequiredPasses = []Pass{
	PassImplementation,
	PassSecurity,
	PassQuality,
	PassUX,
	PassGrowth,
	PassOps,
}

// IsValidPass reports whether name is one of the required pass names.
func IsValidPass(name Pass) bool {
	for _, p := range RequiredPasses {
		if p == name {
			return true
		}
	}
	return false
}

// Severity is the four-level finding severity enum.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
)

// IsValidSeverity reports whether s is one of P0..P3.
func IsValidSeverity(s Severity) bool {
	switch s {
	case SeverityP0, SeverityP1, SeverityP2, SeverityP3:
		return true
	}
	return false
}

// Finding represents a single reviewer-reported issue within a pass.
// Findings are immutable once created within an attempt.
type Finding struct {
	ID       string   `json:"id"`
	Pass     Pass     `json:"pass"`
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Kind     string   `json:"kind,omitempty"`
}

// ReviewPassResult holds the outcome of one review pass.
type ReviewPassResult struct {
	Name     Pass      `json:"name"`
	Summary  string    `json:"summary"`
	Findings []Finding `json:"findings"`
}

// Autofix describes agent-applied code changes reported alongside findings.
type Autofix struct {
	Applied      bool     `json:"applied"`
	Summary      string   `json:"summary,omitempty"`
	ChangedFiles []string `json:"changed_files"`
}

// AgentOutput is the full structured result of one agent invocation.
type AgentOutput struct {
	Version int                `json:"version"`
	RunID   string             `json:"run_id"`
	Passes  []ReviewPassResult `json:"passes"`
	Autofix Autofix            `json:"autofix"`
}

// Findings returns all findings across all passes, in pass order.
func (o *AgentOutput) Findings() []Finding {
	var all []Finding
	for _, p := range o.Passes {
		all = append(all, p.Findings...)
	}
	return all
}

// HasFindings reports whether any pass produced a finding.
func (o *AgentOutput) HasFindings() bool {
	for _, p := range o.Passes {
		if len(p.Findings) > 0 {
			return true
		}
	}
	return false
}
