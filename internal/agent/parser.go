package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/richhaase/agentic-review-loop/internal/domain"
)

// sampleLimit bounds the diagnostic text sample carried by a
// SchemaMismatchError.
const sampleLimit = 512

// SchemaMismatchError indicates no candidate extracted from agent output
// validated against the AgentOutput schema.
type SchemaMismatchError struct {
	Sample     string
	Candidates int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("agent output did not match schema (%d candidate(s) tried): %q", e.Candidates, e.Sample)
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

// ParseOutput extracts and validates a structured review result from
// arbitrary, possibly malformed, agent text output.
//
// Candidates are tried in order: the whole text, each individual line, the
// content of fenced code blocks, and the substring between the first '{' and
// the last '}'. Each successfully decoded candidate is additionally searched
// one level deep for string values that are themselves JSON-encoded. The
// first candidate satisfying the schema wins.
func ParseOutput(raw string) (*domain.AgentOutput, error) {
	cands := candidates(raw)
	for _, cand := range cands {
		if out, err := validate([]byte(cand)); err == nil {
			return out, nil
		}
	}
	return nil, &SchemaMismatchError{Sample: sample(raw), Candidates: len(cands)}
}

func sample(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) > sampleLimit {
		s = s[:sampleLimit]
	}
	return s
}

func candidates(raw string) []string {
	var cands []string
	seen := make(map[string]bool)

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		var decoded any
		if json.Unmarshal([]byte(s), &decoded) != nil {
			return
		}
		seen[s] = true
		cands = append(cands, s)

		// One level of "string containing JSON": agents commonly escape
		// their own output inside a wrapper event.
		for _, nested := range stringValues(decoded) {
			nested = strings.TrimSpace(nested)
			if nested == "" || seen[nested] || !looksLikeJSON(nested) {
				continue
			}
			var nv any
			if json.Unmarshal([]byte(nested), &nv) != nil {
				continue
			}
			seen[nested] = true
			cands = append(cands, nested)
		}
	}

	add(raw)
	for _, line := range strings.Split(raw, "\n") {
		add(line)
	}
	for _, m := range fenceRe.FindAllStringSubmatch(raw, -1) {
		add(m[1])
	}
	if i, j := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); i >= 0 && j > i {
		add(raw[i : j+1])
	}
	return cands
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// stringValues collects every string value reachable in a decoded JSON
// document.
func stringValues(v any) []string {
	var out []string
	switch val := v.(type) {
	case string:
		out = append(out, val)
	case map[string]any:
		for _, item := range val {
			out = append(out, stringValues(item)...)
		}
	case []any:
		for _, item := range val {
			out = append(out, stringValues(item)...)
		}
	}
	return out
}

// validate decodes data as an AgentOutput and enforces the schema: version 1,
// exactly one result per required pass, valid severities, and defaults for
// absent fields.
func validate(data []byte) (*domain.AgentOutput, error) {
	var out domain.AgentOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if out.Version != 1 {
		return nil, fmt.Errorf("unsupported output version %d", out.Version)
	}

	counts := make(map[domain.Pass]int, len(domain.RequiredPasses))
	for _, p := range out.Passes {
		if !domain.IsValidPass(p.Name) {
			return nil, fmt.Errorf("unknown pass %q", p.Name)
		}
		counts[p.Name]++
	}
	for _, name := range domain.RequiredPasses {
		switch counts[name] {
		case 0:
			return nil, fmt.Errorf("missing pass %q", name)
		case 1:
		default:
			return nil, fmt.Errorf("duplicated pass %q", name)
		}
	}

	for pi := range out.Passes {
		for fi := range out.Passes[pi].Findings {
			f := &out.Passes[pi].Findings[fi]
			if !domain.IsValidSeverity(f.Severity) {
				return nil, fmt.Errorf("invalid severity %q in pass %q", f.Severity, out.Passes[pi].Name)
			}
			if f.Pass == "" {
				f.Pass = out.Passes[pi].Name
			}
		}
	}

	if out.Autofix.ChangedFiles == nil {
		out.Autofix.ChangedFiles = []string{}
	}
	if out.RunID == "" {
		out.RunID = uuid.NewString()
	}
	return &out, nil
}
