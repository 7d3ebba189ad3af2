// Package gate implements the review gate marker protocol: an idempotency
// marker on the pull request binding "review satisfied" to a head commit and
// a policy fingerprint.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/richhaase/agentic-review-loop/internal/github"
)

// Marker sentinels embedded in PR conversation comments. Machine-readable
// HTML comments survive GitHub markdown rendering untouched.
const (
	SummaryMarker = "<!-- arl:review-summary -->"
	SkipMarker    = "<!-- arl:review-skipped -->"
	headPrefix    = "<!-- arl:review-head:"
	policyPrefix  = "<!-- arl:review-policy:"
	markerSuffix  = " -->"
)

// Policy is the effective run configuration that participates in gating.
type Policy struct {
	Autofix     bool
	Autopush    bool
	Publish     bool
	Strict      bool
	MaxAttempts int
}

// Key returns the stable policy fingerprint. Two runs with the same key are
// equivalent for gating purposes.
func (p Policy) Key() string {
	canonical := fmt.Sprintf("v1|autofix=%t|autopush=%t|publish=%t|strict=%t|max=%d",
		p.Autofix, p.Autopush, p.Publish, p.Strict, p.MaxAttempts)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// markers holds the machine-readable fields parsed from one comment body.
type markers struct {
	summary bool
	skipped bool
	head    string
	policy  string
}

func parseMarkers(body string) markers {
	var m markers
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == SummaryMarker:
			m.summary = true
		case line == SkipMarker:
			m.skipped = true
		case strings.HasPrefix(line, headPrefix) && strings.HasSuffix(line, markerSuffix):
			m.head = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(line, headPrefix), markerSuffix))
		case strings.HasPrefix(line, policyPrefix) && strings.HasSuffix(line, markerSuffix):
			m.policy = strings.TrimSuffix(strings.TrimPrefix(line, policyPrefix), markerSuffix)
		}
	}
	return m
}

// HasReviewForHead reports whether the PR carries a satisfying review marker
// for headSha under policyKey.
//
// A policy-aware marker satisfies the gate only when its key matches. A
// legacy head-only marker satisfies the gate only when no policy marker at
// all exists for that head: the presence of some policy marker revokes
// legacy leniency. Skip markers never satisfy the gate.
func HasReviewForHead(ctx context.Context, client github.Client, repo string, prNumber int, headSha, policyKey string) (bool, error) {
	comments, err := client.ListIssueComments(ctx, repo, prNumber)
	if err != nil {
		return false, fmt.Errorf("failed to list PR comments: %w", err)
	}

	head := strings.ToLower(headSha)
	sawLegacy := false
	sawPolicyMatch := false
	sawAnyPolicy := false

	for _, c := range comments {
		m := parseMarkers(c.Body)
		if !m.summary || m.skipped || m.head != head {
			continue
		}
		switch {
		case m.policy == "":
			sawLegacy = true
		case m.policy == policyKey:
			sawAnyPolicy = true
			sawPolicyMatch = true
		default:
			sawAnyPolicy = true
		}
	}

	if sawPolicyMatch {
		return true, nil
	}
	if sawLegacy && !sawAnyPolicy {
		return true, nil
	}
	return false, nil
}

// renderMarker builds a gate comment body.
func renderMarker(headSha, policyKey, summary string) string {
	var b strings.Builder
	b.WriteString(SummaryMarker + "\n")
	b.WriteString(headPrefix + strings.ToLower(headSha) + markerSuffix + "\n")
	if policyKey != "" {
		b.WriteString(policyPrefix + policyKey + markerSuffix + "\n")
	}
	b.WriteString("\n")
	b.WriteString(summary)
	return b.String()
}

// Publish appends a gate marker comment for headSha under policyKey. Markers
// are append-only; prior comments are never edited, preserving audit
// history.
func Publish(ctx context.Context, client github.Client, repo string, prNumber int, headSha, policyKey, summary string) error {
	body := renderMarker(headSha, policyKey, summary)
	if err := client.CreateIssueComment(ctx, repo, prNumber, body); err != nil {
		return fmt.Errorf("failed to publish review marker: %w", err)
	}
	return nil
}

// PostSkip posts an explicitly labeled skip marker, distinguishable from a
// genuine pass, when the operator bypasses the gate.
func PostSkip(ctx context.Context, client github.Client, repo string, prNumber int, headSha, reason string) error {
	var b strings.Builder
	b.WriteString(SkipMarker + "\n")
	b.WriteString(headPrefix + strings.ToLower(headSha) + markerSuffix + "\n\n")
	b.WriteString("Review gate explicitly skipped")
	if reason != "" {
		b.WriteString(": " + reason)
	}
	if err := client.CreateIssueComment(ctx, repo, prNumber, b.String()); err != nil {
		return fmt.Errorf("failed to post gate skip comment: %w", err)
	}
	return nil
}

// SleepFunc waits for d or returns early with the context error. Injectable
// so the readiness poll stays deterministic under test.
type SleepFunc func(ctx context.Context, d time.Duration) error

// WaitSatisfied polls HasReviewForHead every interval until the gate is
// satisfied, the timeout elapses, or the context is canceled.
func WaitSatisfied(ctx context.Context, client github.Client, repo string, prNumber int, headSha, policyKey string, interval, timeout time.Duration, sleep SleepFunc) (bool, error) {
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := HasReviewForHead(ctx, client, repo, prNumber, headSha, policyKey)
		if err != nil || ok {
			return ok, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		if err := sleep(ctx, interval); err != nil {
			return false, err
		}
	}
}
