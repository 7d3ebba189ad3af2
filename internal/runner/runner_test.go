package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richhaase/agentic-review-loop/internal/agent"
	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/findings"
	"github.com/richhaase/agentic-review-loop/internal/followup"
	"github.com/richhaase/agentic-review-loop/internal/gate"
	"github.com/richhaase/agentic-review-loop/internal/github"
	"github.com/richhaase/agentic-review-loop/internal/github/githubtest"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
)

func cleanOutput() *domain.AgentOutput {
	out := &domain.AgentOutput{Version: 1, RunID: "run-1"}
	for _, p := range domain.RequiredPasses {
		out.Passes = append(out.Passes, domain.ReviewPassResult{Name: p, Summary: "ok"})
	}
	return out
}

func outputWithFinding() *domain.AgentOutput {
	out := cleanOutput()
	out.Passes[0].Findings = []domain.Finding{{
		Pass:     out.Passes[0].Name,
		Severity: domain.SeverityP1,
		Title:    "Nil map write",
		Body:     "Writing to a nil map panics.",
		File:     "internal/cache/cache.go",
		Line:     42,
	}}
	return out
}

// step is one scripted invocation outcome.
type step struct {
	res *agent.InvokeResult
	err error
}

// scriptedInvoke replays canned results, repeating the last entry.
func scriptedInvoke(count *int, steps ...step) InvokeFunc {
	return func(ctx context.Context, plan *agent.ExecutionPlan, input agent.ReviewInput) (*agent.InvokeResult, error) {
		i := *count
		*count++
		if i >= len(steps) {
			i = len(steps) - 1
		}
		return steps[i].res, steps[i].err
	}
}

type fakeGit struct {
	dirtyReads []bool
	readIdx    int
	calls      []string
	pushErr    error
}

func (g *fakeGit) HasUncommitted(ctx context.Context) (bool, error) {
	g.calls = append(g.calls, "status")
	if g.readIdx < len(g.dirtyReads) {
		d := g.dirtyReads[g.readIdx]
		g.readIdx++
		return d, nil
	}
	return false, nil
}

func (g *fakeGit) CommitAll(ctx context.Context, message string) error {
	g.calls = append(g.calls, "commit")
	return nil
}

func (g *fakeGit) Push(ctx context.Context, branch string) error {
	g.calls = append(g.calls, "push:"+branch)
	return g.pushErr
}

func newRunner(fake *githubtest.Fake, invoke InvokeFunc, mutate func(*Config)) *Runner {
	cfg := Config{
		Workspace:   "/work",
		Repo:        "o/r",
		Branch:      "feature/x",
		BaseBranch:  "main",
		Head:        "abc123",
		Issue:       agent.IssueRef{ID: "1423", Title: "Flaky cache eviction"},
		PR:          agent.PRRef{Number: 7},
		MaxAttempts: 3,
		Publish:     true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &Runner{
		Config: cfg,
		Client: fake,
		Plan:   &agent.ExecutionPlan{Mode: agent.ModeProvider, Provider: agent.ProviderCodex},
		Invoke: invoke,
		Git:    &fakeGit{},
	}
}

func mutationCalls(calls []string) []string {
	var out []string
	for _, c := range calls {
		switch {
		case strings.HasPrefix(c, "comment:"),
			strings.HasPrefix(c, "reply:"),
			strings.HasPrefix(c, "resolve:"),
			strings.HasPrefix(c, "issue-create:"),
			strings.HasPrefix(c, "issue-edit:"),
			strings.HasPrefix(c, "issue-close:"):
			out = append(out, c)
		}
	}
	return out
}

func seedFollowup(fake *githubtest.Fake, sourceID string) {
	fake.Issues = append(fake.Issues, github.Issue{
		Number: 55,
		Title:  "Review follow-up",
		Body:   followup.SourceMarker(sourceID) + "\n\nolder content",
	})
}

func TestResolvedPublishesAndClosesFollowup(t *testing.T) {
	fake := githubtest.New()
	seedFollowup(fake, "1423")

	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: cleanOutput()}}), nil)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationResolved, result.Reason)
	assert.Equal(t, domain.ExitOK, result.ExitCode)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, result.Unresolved)

	// The gate marker was published and satisfies a re-run with the same
	// policy.
	key := r.Config.gatePolicy().Key()
	satisfied, err := gate.HasReviewForHead(context.Background(), fake, "o/r", 7, "abc123", key)
	require.NoError(t, err)
	assert.True(t, satisfied)

	// The stale follow-up issue was closed.
	assert.Empty(t, fake.Issues)
	assert.Contains(t, fake.Calls, "issue-close:55")
}

func TestSecondRunShortCircuitsOnGate(t *testing.T) {
	fake := githubtest.New()
	count := 0
	invoke := scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: cleanOutput()}})

	r := newRunner(fake, invoke, nil)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)

	r2 := newRunner(fake, invoke, nil)
	result, err := r2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationGateSkipped, result.Reason)
	assert.Equal(t, domain.ExitOK, result.ExitCode)
	assert.Equal(t, 1, count, "gate-skipped run must not invoke the agent")
}

func TestPolicyChangeReopensGate(t *testing.T) {
	fake := githubtest.New()
	count := 0
	invoke := scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: cleanOutput()}})

	r := newRunner(fake, invoke, nil)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	strict := newRunner(fake, invoke, func(c *Config) { c.Strict = true })
	result, err := strict.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationResolved, result.Reason)
	assert.Equal(t, 2, count, "a different policy must re-run the review")
}

func TestExhaustionStrictSplit(t *testing.T) {
	for _, strict := range []bool{false, true} {
		name := "lenient"
		if strict {
			name = "strict"
		}
		t.Run(name, func(t *testing.T) {
			fake := githubtest.New()
			count := 0
			r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: outputWithFinding()}}),
				func(c *Config) { c.Strict = strict })

			result, err := r.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 3, result.Attempts)
			assert.Equal(t, 3, count)
			require.Len(t, result.Unresolved, 1)

			if strict {
				assert.Equal(t, domain.TerminationStrictFail, result.Reason)
				assert.Equal(t, domain.ExitFailure, result.ExitCode)
			} else {
				assert.Equal(t, domain.TerminationExhausted, result.Reason)
				assert.Equal(t, domain.ExitOK, result.ExitCode)
			}

			// Exhaustion still publishes the gate and tracks the leftover
			// finding in a follow-up issue.
			assert.Contains(t, fake.Calls, "comment:7")
			assert.NotZero(t, result.FollowupIssue)
			require.Len(t, fake.Issues, 1)
			assert.Contains(t, fake.Issues[0].Body, "Nil map write")
		})
	}
}

func TestAgentErrorWhenAllAttemptsFail(t *testing.T) {
	fake := githubtest.New()
	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{err: errors.New("schema mismatch")}), nil)

	result, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.TerminationAgentError, result.Reason)
	assert.Equal(t, domain.ExitError, result.ExitCode)
	assert.Equal(t, 3, count, "each failure consumes one attempt")
	assert.Empty(t, mutationCalls(fake.Calls), "failed runs must not publish or touch issues")
}

func TestPartialFailureStillResolves(t *testing.T) {
	fake := githubtest.New()
	count := 0
	r := newRunner(fake, scriptedInvoke(&count,
		step{err: errors.New("truncated output")},
		step{res: &agent.InvokeResult{Output: cleanOutput()}},
	), nil)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationResolved, result.Reason)
	assert.Equal(t, 2, result.Attempts)
}

func TestDryRunMutatesNothing(t *testing.T) {
	fake := githubtest.New()
	seedFollowup(fake, "1423")
	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: outputWithFinding()}}),
		func(c *Config) { c.DryRun = true })

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationDryRun, result.Reason)
	assert.Equal(t, domain.ExitOK, result.ExitCode)
	assert.Equal(t, 1, count, "dry run performs exactly one pass")
	assert.Empty(t, mutationCalls(fake.Calls))
	assert.Len(t, fake.Issues, 1, "follow-up issue untouched")
	assert.NotEmpty(t, result.Unresolved, "dry run still reports the merge")
}

func TestSkipGatePostsSkipMarker(t *testing.T) {
	fake := githubtest.New()
	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: cleanOutput()}}),
		func(c *Config) { c.SkipGate = true })

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationGateSkipped, result.Reason)
	assert.Equal(t, 0, count)
	require.Len(t, fake.Comments, 1)
	assert.Contains(t, fake.Comments[0].Body, gate.SkipMarker)

	// A skip marker never satisfies a later gate check.
	key := r.Config.gatePolicy().Key()
	satisfied, err := gate.HasReviewForHead(context.Background(), fake, "o/r", 7, "abc123", key)
	require.NoError(t, err)
	assert.False(t, satisfied)
}

func TestThreadFindingKeepsLoopGoing(t *testing.T) {
	fake := githubtest.New()
	f := domain.Finding{
		Pass:     domain.PassImplementation,
		Severity: domain.SeverityP2,
		Title:    "Leaked goroutine",
		Body:     "Worker never exits on shutdown.",
		File:     "internal/worker/pool.go",
		Line:     10,
	}
	fake.Threads = []github.ReviewThread{{
		ID:   "T1",
		Path: f.File,
		Line: f.Line,
		Comments: []github.ThreadComment{
			{Body: findings.RenderSection(f), Author: "arl-bot"},
		},
	}}

	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: cleanOutput()}}), nil)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationExhausted, result.Reason)
	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, "T1", result.Unresolved[0].ThreadID)
}

func TestAutopushCommitsPushesVerifies(t *testing.T) {
	fake := githubtest.New()
	out := outputWithFinding()
	out.Autofix = domain.Autofix{Applied: true, ChangedFiles: []string{"internal/cache/cache.go"}}

	git := &fakeGit{dirtyReads: []bool{true, false}}
	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: out}}),
		func(c *Config) { c.Autopush = true })
	r.Git = git

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "commit", "push:feature/x", "status"}, git.calls)
	assert.Equal(t, []string{"internal/cache/cache.go"}, result.ChangedFiles)
}

func TestAutopushResidueFailsLoudly(t *testing.T) {
	fake := githubtest.New()
	out := cleanOutput()
	out.Autofix = domain.Autofix{Applied: true, ChangedFiles: []string{"main.go"}}

	git := &fakeGit{dirtyReads: []bool{true, true}}
	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: out}}),
		func(c *Config) { c.Autopush = true })
	r.Git = git

	result, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still dirty")
	assert.Equal(t, domain.ExitError, result.ExitCode)
	assert.NotContains(t, fake.Calls, "comment:7", "publish must not follow a failed autopush")
}

func TestReportListsUnresolvedFindings(t *testing.T) {
	terminal.WithColorsDisabled(func() {
		fake := githubtest.New()
		count := 0
		r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: outputWithFinding()}}), nil)
		var buf bytes.Buffer
		r.Logger = terminal.NewTestLogger(&buf)

		result, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Greater(t, result.Duration, time.Duration(0))

		out := buf.String()
		assert.Contains(t, out, "Review finished: max-attempts-exhausted after 3 attempt(s) in ")
		assert.Contains(t, out, "1 finding(s) unresolved:")
		assert.Contains(t, out, "  [P1/implementation] Nil map write")
	})
}

func TestNoPublishSuppressesGateMarker(t *testing.T) {
	fake := githubtest.New()
	count := 0
	r := newRunner(fake, scriptedInvoke(&count, step{res: &agent.InvokeResult{Output: cleanOutput()}}),
		func(c *Config) { c.Publish = false })

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TerminationResolved, result.Reason)
	assert.Empty(t, fake.Comments)
}
