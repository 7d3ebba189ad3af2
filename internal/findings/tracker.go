package findings

import (
	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/github"
)

// Source names where an unresolved finding was observed.
type Source string

const (
	SourceRun    Source = "run"
	SourceThread Source = "thread"
	SourceIssue  Source = "issue"
)

// Unresolved is one entry of the merged unresolved set.
type Unresolved struct {
	Fingerprint string
	Finding     domain.Finding
	Sources     []Source
	// ThreadID is set when the finding was observed in an unresolved
	// review thread.
	ThreadID string
}

// ThreadFinding is a finding recovered from a review thread's comments.
type ThreadFinding struct {
	Tracked  Tracked
	ThreadID string
	// Mixed reports that the thread contains comments from participants
	// other than the marker author (humans, other tools). Mixed threads are
	// never eligible for automatic resolution.
	Mixed bool
}

// FromThread recovers the originating finding of a review thread. The second
// return is false for non-managed threads (no comment carries a fingerprint
// marker); such threads never participate in lifecycle tracking.
func FromThread(t github.ReviewThread) (ThreadFinding, bool) {
	for _, c := range t.Comments {
		tracked, ok := ExtractFirst(c.Body)
		if !ok {
			continue
		}
		// Fill location from the thread when the meta marker lacks it.
		if tracked.HasMeta && tracked.Finding.File == "" && t.Path != "" {
			tracked.Finding.File = t.Path
			tracked.Finding.Line = t.Line
		}
		tf := ThreadFinding{Tracked: tracked, ThreadID: t.ID}
		for _, other := range t.Comments {
			if other.Author != c.Author {
				tf.Mixed = true
				break
			}
		}
		return tf, true
	}
	return ThreadFinding{}, false
}

// MergeUnresolved merges the three finding sources into one deduplicated
// unresolved set: set union over fingerprints, never a numeric maximum.
// Order is deterministic: current-run findings first, then thread-only, then
// issue-only.
//
// A fingerprint is dropped only when it is absent from the current run, no
// unresolved thread carries it, and a resolved thread does. Threads without
// markers are non-managed and contribute nothing.
func MergeUnresolved(current []domain.Finding, threads []github.ReviewThread, issueFindings []Tracked) []Unresolved {
	var order []string
	entries := make(map[string]*Unresolved)

	add := func(fp string, f domain.Finding, src Source, threadID string) {
		e, ok := entries[fp]
		if !ok {
			e = &Unresolved{Fingerprint: fp, Finding: f}
			entries[fp] = e
			order = append(order, fp)
		}
		e.Sources = append(e.Sources, src)
		if threadID != "" && e.ThreadID == "" {
			e.ThreadID = threadID
		}
	}

	inRun := make(map[string]bool, len(current))
	for _, f := range current {
		fp := domain.Fingerprint(f)
		inRun[fp] = true
		add(fp, f, SourceRun, "")
	}

	resolved := make(map[string]bool)
	open := make(map[string]bool)
	for _, t := range threads {
		tf, ok := FromThread(t)
		if !ok {
			continue
		}
		if t.IsResolved {
			resolved[tf.Tracked.Fingerprint] = true
			continue
		}
		open[tf.Tracked.Fingerprint] = true
		add(tf.Tracked.Fingerprint, tf.Tracked.Finding, SourceThread, tf.ThreadID)
	}

	for _, tracked := range issueFindings {
		add(tracked.Fingerprint, tracked.Finding, SourceIssue, "")
	}

	var merged []Unresolved
	for _, fp := range order {
		if resolved[fp] && !inRun[fp] && !open[fp] {
			continue
		}
		merged = append(merged, *entries[fp])
	}
	return merged
}
