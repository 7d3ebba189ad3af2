// Package findings canonicalizes findings from the current run, remote
// review threads, and the follow-up issue into one deduplicated unresolved
// set, keyed by fingerprint.
package findings

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richhaase/agentic-review-loop/internal/domain"
)

// Comment marker sentinels. The fingerprint marker identifies which finding
// a comment originated from; the meta marker carries enough of the finding
// to reconstruct it from the comment alone.
const (
	fingerprintPrefix = "<!-- arl:finding:"
	metaPrefix        = "<!-- arl:finding-meta:"
	markerSuffix      = " -->"
)

// findingMeta is the reconstructable subset embedded in the meta marker.
type findingMeta struct {
	Pass     domain.Pass     `json:"pass"`
	Severity domain.Severity `json:"severity"`
	Title    string          `json:"title"`
	File     string          `json:"file,omitempty"`
	Line     int             `json:"line,omitempty"`
	Kind     string          `json:"kind,omitempty"`
}

// FingerprintMarker renders the fingerprint sentinel line.
func FingerprintMarker(fingerprint string) string {
	return fingerprintPrefix + fingerprint + markerSuffix
}

// MetaMarker renders the meta sentinel line for a finding.
func MetaMarker(f domain.Finding) string {
	meta := findingMeta{
		Pass:     f.Pass,
		Severity: f.Severity,
		Title:    f.Title,
		File:     f.File,
		Line:     f.Line,
		Kind:     f.Kind,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		// findingMeta contains only marshalable fields.
		panic(err)
	}
	return metaPrefix + base64.StdEncoding.EncodeToString(data) + markerSuffix
}

// RenderSection renders one finding as a markdown section carrying both
// markers, used in gate summaries, thread replies, and follow-up bodies.
func RenderSection(f domain.Finding) string {
	fp := domain.Fingerprint(f)
	var b strings.Builder
	b.WriteString(FingerprintMarker(fp) + "\n")
	b.WriteString(MetaMarker(f) + "\n")
	b.WriteString(fmt.Sprintf("### [%s/%s] %s\n", f.Severity, f.Pass, f.Title))
	if f.File != "" {
		b.WriteString(fmt.Sprintf("`%s:%d`\n", f.File, f.Line))
	}
	if f.Body != "" {
		b.WriteString("\n" + f.Body + "\n")
	}
	return b.String()
}

// Tracked is a finding recovered from a marker-bearing text source together
// with its fingerprint.
type Tracked struct {
	Fingerprint string
	Finding     domain.Finding
	// HasMeta reports whether the finding fields were reconstructed from a
	// meta marker rather than defaulted.
	HasMeta bool
}

// ExtractAll recovers every marker-delimited finding from a text body, in
// order. A fingerprint marker without a following meta marker yields a
// Tracked with only the fingerprint populated.
func ExtractAll(body string) []Tracked {
	var out []Tracked
	var current *Tracked

	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, fingerprintPrefix) && strings.HasSuffix(line, markerSuffix):
			flush()
			fp := strings.TrimSuffix(strings.TrimPrefix(line, fingerprintPrefix), markerSuffix)
			current = &Tracked{Fingerprint: fp}
		case strings.HasPrefix(line, metaPrefix) && strings.HasSuffix(line, markerSuffix):
			if current == nil {
				continue
			}
			encoded := strings.TrimSuffix(strings.TrimPrefix(line, metaPrefix), markerSuffix)
			data, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				continue
			}
			var meta findingMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				continue
			}
			current.Finding = domain.Finding{
				Pass:     meta.Pass,
				Severity: meta.Severity,
				Title:    meta.Title,
				File:     meta.File,
				Line:     meta.Line,
				Kind:     meta.Kind,
			}
			current.HasMeta = true
		}
	}
	flush()
	return out
}

// ExtractFirst recovers the first marker-delimited finding from a body.
func ExtractFirst(body string) (Tracked, bool) {
	all := ExtractAll(body)
	if len(all) == 0 {
		return Tracked{}, false
	}
	return all[0], true
}
