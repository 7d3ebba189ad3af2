// Package followup manages the single defect-tracking issue per source
// issue: created while unresolved findings remain, kept current, and closed
// when the merged unresolved set becomes empty.
package followup

import (
	"context"
	"fmt"
	"strings"

	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/findings"
	"github.com/richhaase/agentic-review-loop/internal/github"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
)

const (
	sourcePrefix = "<!-- arl:follow-up:"
	markerSuffix = " -->"
)

// DefaultLabel is applied to follow-up issues unless overridden.
const DefaultLabel = "bug"

// SourceMarker renders the marker binding a follow-up issue to its source
// issue.
func SourceMarker(sourceID string) string {
	return sourcePrefix + sourceID + markerSuffix
}

// hasSourceMarker reports whether body carries the marker for sourceID.
func hasSourceMarker(body, sourceID string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == SourceMarker(sourceID) {
			return true
		}
	}
	return false
}

// Manager creates, updates, and closes follow-up issues.
type Manager struct {
	Client github.Client
	Logger *terminal.Logger
	// Label overrides the default follow-up label. Findings of kind
	// defect/regression/security, or any P0/P1 finding, force "bug"
	// regardless.
	Label string
}

// labelFor picks the follow-up label from severity/kind heuristics.
func (m *Manager) labelFor(unresolved []findings.Unresolved) string {
	for _, u := range unresolved {
		switch u.Finding.Kind {
		case "defect", "regression", "security":
			return "bug"
		}
		switch u.Finding.Severity {
		case domain.SeverityP0, domain.SeverityP1:
			return "bug"
		}
	}
	if m.Label != "" {
		return m.Label
	}
	return DefaultLabel
}

// RenderBody builds the follow-up issue body enumerating the unresolved set,
// one marker-bearing section per finding.
func RenderBody(source SourceIssue, unresolved []findings.Unresolved) string {
	var b strings.Builder
	b.WriteString(SourceMarker(source.ID) + "\n\n")
	b.WriteString(fmt.Sprintf("Unresolved review findings for %s (%s).\n\n", source.Ref(), source.Title))
	for _, u := range unresolved {
		b.WriteString(findings.RenderSection(u.Finding))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("_%d finding(s) remain unresolved._\n", len(unresolved)))
	return b.String()
}

// ParseBody recovers tracked findings from a follow-up issue body.
func ParseBody(body string) []findings.Tracked {
	return findings.ExtractAll(body)
}

// SourceIssue identifies the issue a follow-up tracks.
type SourceIssue struct {
	ID    string
	Title string
	URL   string
}

// Ref returns a human-readable reference to the source issue.
func (s SourceIssue) Ref() string {
	if s.URL != "" {
		return s.URL
	}
	return "#" + s.ID
}

// FindOpen returns the open follow-up issue for sourceID, or nil.
func (m *Manager) FindOpen(ctx context.Context, repo string, sourceID string) (*github.Issue, error) {
	issues, err := m.Client.ListOpenIssues(ctx, repo, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list open issues: %w", err)
	}
	for i := range issues {
		if hasSourceMarker(issues[i].Body, sourceID) {
			return &issues[i], nil
		}
	}
	return nil, nil
}

// Sync converges the follow-up issue with the merged unresolved set: creates
// the issue if none exists, otherwise rewrites its body. Returns the issue
// number.
func (m *Manager) Sync(ctx context.Context, repo string, source SourceIssue, unresolved []findings.Unresolved) (int, error) {
	existing, err := m.FindOpen(ctx, repo, source.ID)
	if err != nil {
		return 0, err
	}

	body := RenderBody(source, unresolved)
	if existing != nil {
		if err := m.Client.EditIssueBody(ctx, repo, existing.Number, body); err != nil {
			return 0, fmt.Errorf("failed to update follow-up issue #%d: %w", existing.Number, err)
		}
		return existing.Number, nil
	}

	title := fmt.Sprintf("Review follow-up for issue %s: %s", source.ID, source.Title)
	number, err := m.Client.CreateIssue(ctx, repo, title, body, []string{m.labelFor(unresolved)})
	if err != nil {
		return 0, fmt.Errorf("failed to create follow-up issue: %w", err)
	}
	return number, nil
}

// CloseAll closes every open follow-up issue for the source issue. Close
// failures are reported as warnings and never fail the run; the remote call
// itself is already retried by the executor underneath the client.
func (m *Manager) CloseAll(ctx context.Context, repo string, sourceID string) {
	issues, err := m.Client.ListOpenIssues(ctx, repo, "")
	if err != nil {
		m.warnf("Could not list follow-up issues to close: %v", err)
		return
	}
	for _, issue := range issues {
		if !hasSourceMarker(issue.Body, sourceID) {
			continue
		}
		if err := m.Client.CloseIssue(ctx, repo, issue.Number); err != nil {
			m.warnf("Could not close follow-up issue #%d: %v", issue.Number, err)
			continue
		}
		m.infof("Closed follow-up issue #%d", issue.Number)
	}
}

func (m *Manager) warnf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Logf(terminal.StyleWarning, format, args...)
	}
}

func (m *Manager) infof(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Logf(terminal.StyleSuccess, format, args...)
	}
}
