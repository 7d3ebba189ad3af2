// Package runner drives the review attempt loop: invoke the agent, merge
// unresolved findings from every source, and converge the remote state
// (gate marker, follow-up issue, pushed autofixes) on termination.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richhaase/agentic-review-loop/internal/agent"
	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/findings"
	"github.com/richhaase/agentic-review-loop/internal/followup"
	"github.com/richhaase/agentic-review-loop/internal/gate"
	"github.com/richhaase/agentic-review-loop/internal/github"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
)

// Config holds the runner configuration.
type Config struct {
	Workspace  string
	Repo       string
	Branch     string
	BaseBranch string
	Head       string

	Issue agent.IssueRef
	PR    agent.PRRef

	MaxAttempts   int
	Autofix       bool
	Autopush      bool
	Publish       bool
	Strict        bool
	DryRun        bool
	SkipGate      bool
	FollowupLabel string
}

// PolicyKey returns the gate policy fingerprint for this configuration.
func (c Config) PolicyKey() string {
	return c.gatePolicy().Key()
}

// gatePolicy derives the gate policy from the loop configuration.
func (c Config) gatePolicy() gate.Policy {
	return gate.Policy{
		Autofix:     c.Autofix,
		Autopush:    c.Autopush,
		Publish:     c.Publish,
		Strict:      c.Strict,
		MaxAttempts: c.MaxAttempts,
	}
}

// GitOps is the subset of working-tree operations the loop needs.
type GitOps interface {
	HasUncommitted(ctx context.Context) (bool, error)
	CommitAll(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
}

// InvokeFunc runs one agent invocation. Matches (*agent.Invoker).Invoke.
type InvokeFunc func(ctx context.Context, plan *agent.ExecutionPlan, input agent.ReviewInput) (*agent.InvokeResult, error)

// Result is the terminal state of one review loop.
type Result struct {
	Reason   domain.TerminationReason
	ExitCode domain.ExitCode
	Attempts int
	Duration time.Duration

	Unresolved   []findings.Unresolved
	ChangedFiles []string

	// FollowupIssue is the follow-up issue number, when one was upserted.
	FollowupIssue int

	// SessionID is the provider session observed on the last successful
	// invocation, cacheable as a resume token.
	SessionID string
}

// Runner executes the attempt loop against one PR.
type Runner struct {
	Config Config
	Client github.Client
	Plan   *agent.ExecutionPlan
	Invoke InvokeFunc
	Git    GitOps
	Logger *terminal.Logger
}

// Run executes the loop to a terminal state. The returned Result carries the
// exit code even when err is non-nil.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	policy := r.Config.gatePolicy()
	key := policy.Key()

	if r.Config.SkipGate {
		if !r.Config.DryRun {
			if err := gate.PostSkip(ctx, r.Client, r.Config.Repo, r.Config.PR.Number, r.Config.Head, "skipped by operator"); err != nil {
				return &Result{Reason: domain.TerminationGateSkipped, ExitCode: domain.ExitError}, err
			}
		}
		r.logf(terminal.StyleWarning, "Review gate skipped for head %s", r.Config.Head)
		return &Result{Reason: domain.TerminationGateSkipped, ExitCode: domain.ExitOK}, nil
	}

	satisfied, err := gate.HasReviewForHead(ctx, r.Client, r.Config.Repo, r.Config.PR.Number, r.Config.Head, key)
	if err != nil {
		return &Result{Reason: domain.TerminationGateSkipped, ExitCode: domain.ExitError}, fmt.Errorf("gate check failed: %w", err)
	}
	if satisfied {
		r.logf(terminal.StyleSuccess, "Review already recorded for head %s, nothing to do", r.Config.Head)
		return &Result{Reason: domain.TerminationGateSkipped, ExitCode: domain.ExitOK}, nil
	}

	start := time.Now()
	result, runErr := r.loop(ctx)
	result.Duration = time.Since(start)
	if runErr != nil {
		return result, runErr
	}

	if result.Reason.Mutates() {
		if err := r.finalize(ctx, key, result); err != nil {
			result.ExitCode = domain.ExitError
			return result, err
		}
	}

	r.report(result)
	return result, nil
}

// loop runs attempts until the merged unresolved set is empty or attempts
// run out. A failed or unparsable invocation consumes its attempt.
func (r *Runner) loop(ctx context.Context) (*Result, error) {
	result := &Result{}
	var invokeErr error
	succeeded := false

	for attempt := 1; attempt <= r.Config.MaxAttempts; attempt++ {
		result.Attempts = attempt
		r.logf(terminal.StylePhase, "Review attempt %d/%d", attempt, r.Config.MaxAttempts)

		input := agent.NewReviewInput(
			r.Config.Workspace, r.Config.Repo, r.Config.Issue,
			r.Config.Branch, r.Config.BaseBranch, r.Config.PR,
			attempt, r.Config.MaxAttempts, r.Config.Autofix,
		)

		res, err := r.Invoke(ctx, r.Plan, input)
		if err != nil {
			if ctx.Err() != nil {
				result.ExitCode = domain.ExitInterrupted
				return result, ctx.Err()
			}
			invokeErr = err
			r.logf(terminal.StyleWarning, "Attempt %d failed: %v", attempt, err)
			continue
		}
		succeeded = true
		if res.SessionID != "" {
			result.SessionID = res.SessionID
		}
		if res.ResumeFellBack {
			r.logf(terminal.StyleDim, "Session resume failed, ran a fresh invocation")
		}
		if res.Output.Autofix.Applied {
			result.ChangedFiles = appendUnique(result.ChangedFiles, res.Output.Autofix.ChangedFiles)
		}

		unresolved, err := r.mergeRemote(ctx, res.Output.Findings())
		if err != nil {
			result.ExitCode = domain.ExitError
			return result, err
		}
		result.Unresolved = unresolved

		if r.Config.DryRun {
			result.Reason = domain.TerminationDryRun
			result.ExitCode = domain.ExitOK
			return result, nil
		}
		if len(unresolved) == 0 {
			result.Reason = domain.TerminationResolved
			result.ExitCode = domain.ExitOK
			return result, nil
		}
		r.logf(terminal.StyleInfo, "%d finding(s) still unresolved", len(unresolved))
	}

	if !succeeded {
		result.Reason = domain.TerminationAgentError
		result.ExitCode = domain.ExitError
		return result, fmt.Errorf("every attempt failed: %w", invokeErr)
	}

	if r.Config.Strict {
		result.Reason = domain.TerminationStrictFail
		result.ExitCode = domain.ExitFailure
	} else {
		result.Reason = domain.TerminationExhausted
		result.ExitCode = domain.ExitOK
		r.logf(terminal.StyleWarning, "Attempts exhausted with %d finding(s) unresolved", len(result.Unresolved))
	}
	return result, nil
}

// mergeRemote unions the current run's findings with unresolved review
// threads and the open follow-up issue.
func (r *Runner) mergeRemote(ctx context.Context, current []domain.Finding) ([]findings.Unresolved, error) {
	threads, err := r.Client.ListReviewThreads(ctx, r.Config.Repo, r.Config.PR.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to list review threads: %w", err)
	}

	mgr := r.followupManager()
	var issueFindings []findings.Tracked
	if issue, err := mgr.FindOpen(ctx, r.Config.Repo, r.Config.Issue.ID); err != nil {
		return nil, err
	} else if issue != nil {
		issueFindings = followup.ParseBody(issue.Body)
	}

	return findings.MergeUnresolved(current, threads, issueFindings), nil
}

// finalize converges remote state after a mutating terminal state: push
// autofixes, publish the gate marker, upsert or close the follow-up issue.
func (r *Runner) finalize(ctx context.Context, policyKey string, result *Result) error {
	if r.Config.Autopush && len(result.ChangedFiles) > 0 {
		if err := r.pushAutofixes(ctx); err != nil {
			return err
		}
	}

	if r.Config.Publish {
		summary := r.renderSummary(result)
		if err := gate.Publish(ctx, r.Client, r.Config.Repo, r.Config.PR.Number, r.Config.Head, policyKey, summary); err != nil {
			return fmt.Errorf("failed to publish review marker: %w", err)
		}
	}

	mgr := r.followupManager()
	source := followup.SourceIssue{ID: r.Config.Issue.ID, Title: r.Config.Issue.Title, URL: r.Config.Issue.URL}
	if len(result.Unresolved) > 0 {
		number, err := mgr.Sync(ctx, r.Config.Repo, source, result.Unresolved)
		if err != nil {
			return err
		}
		result.FollowupIssue = number
	} else {
		mgr.CloseAll(ctx, r.Config.Repo, r.Config.Issue.ID)
	}
	return nil
}

// pushAutofixes commits and pushes applied fixes, then verifies the working
// tree came out clean.
func (r *Runner) pushAutofixes(ctx context.Context) error {
	dirty, err := r.Git.HasUncommitted(ctx)
	if err != nil {
		return err
	}
	if dirty {
		if err := r.Git.CommitAll(ctx, "Apply review autofixes"); err != nil {
			return err
		}
	}
	if err := r.Git.Push(ctx, r.Config.Branch); err != nil {
		return err
	}
	dirty, err = r.Git.HasUncommitted(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return errors.New("working tree still dirty after autofix push: refusing to continue")
	}
	return nil
}

func (r *Runner) followupManager() *followup.Manager {
	return &followup.Manager{Client: r.Client, Logger: r.Logger, Label: r.Config.FollowupLabel}
}

// renderSummary builds the gate comment body: a human-readable verdict plus
// one marker-bearing section per unresolved finding.
func (r *Runner) renderSummary(result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Review of `%s`\n\n", r.Config.Head)
	fmt.Fprintf(&b, "Terminated after %d attempt(s): **%s**.\n\n", result.Attempts, result.Reason)
	if len(result.Unresolved) == 0 {
		b.WriteString("No unresolved findings.\n")
	} else {
		fmt.Fprintf(&b, "%d unresolved finding(s):\n\n", len(result.Unresolved))
		for _, u := range result.Unresolved {
			b.WriteString(findings.RenderSection(u.Finding))
			b.WriteString("\n")
		}
	}
	if len(result.ChangedFiles) > 0 {
		fmt.Fprintf(&b, "\nAutofixes touched %d file(s).\n", len(result.ChangedFiles))
	}
	return b.String()
}

func (r *Runner) report(result *Result) {
	style := terminal.StyleSuccess
	if result.ExitCode != domain.ExitOK {
		style = terminal.StyleError
	}
	r.logf(style, "Review finished: %s after %d attempt(s) in %s",
		result.Reason, result.Attempts, terminal.FormatDuration(result.Duration))
	if len(result.Unresolved) > 0 {
		r.logf(terminal.StyleWarning, "%d finding(s) unresolved:", len(result.Unresolved))
		width := terminal.ReportWidth()
		for _, u := range result.Unresolved {
			line := fmt.Sprintf("[%s/%s] %s", u.Finding.Severity, u.Finding.Pass, u.Finding.Title)
			r.logf(terminal.StyleDim, "%s", terminal.WrapText(line, width, "  "))
		}
	}
	if result.FollowupIssue != 0 {
		r.logf(terminal.StyleInfo, "Unresolved findings tracked in issue #%d", result.FollowupIssue)
	}
}

func (r *Runner) logf(style terminal.Style, format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Logf(style, format, args...)
	}
}

func appendUnique(dst []string, add []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}
