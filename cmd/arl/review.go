package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/richhaase/agentic-review-loop/internal/agent"
	"github.com/richhaase/agentic-review-loop/internal/config"
	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/git"
	"github.com/richhaase/agentic-review-loop/internal/github"
	"github.com/richhaase/agentic-review-loop/internal/runcache"
	"github.com/richhaase/agentic-review-loop/internal/runner"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
)

type reviewFlags struct {
	issue         string
	pr            int
	agentName     string
	agentCmd      string
	binary        string
	maxAttempts   int
	strict        bool
	autofix       bool
	noAutofix     bool
	autopush      bool
	noPublish     bool
	followupLabel string
	dryRun        bool
	skipGate      bool
	verbose       bool
	configPath    string
	noConfig      bool
}

func newReviewCmd() *cobra.Command {
	var flags reviewFlags

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Run the review loop against a pull request",
		Long: `Invoke the review agent across the six fixed passes, merge its findings
with unresolved review threads and the follow-up issue, and repeat until the
merged set is empty or attempts run out. On termination the review gate
marker is published and the follow-up issue converged.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReview(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.issue, "issue", "", "Source issue id driving this change (required)")
	cmd.Flags().IntVar(&flags.pr, "pr", 0, "PR number (default: detect from current branch)")
	cmd.Flags().StringVarP(&flags.agentName, "agent", "a", "", "Agent provider: codex, claude, gemini (env: ARL_AGENT)")
	cmd.Flags().StringVar(&flags.agentCmd, "agent-cmd", "", "Raw shell command to run as the agent (env: ARL_AGENT_CMD)")
	cmd.Flags().StringVar(&flags.binary, "binary", "", "Override the provider executable (env: ARL_BINARY)")
	cmd.Flags().IntVar(&flags.maxAttempts, "max-attempts", 0, "Attempt budget (default: 5, env: ARL_MAX_ATTEMPTS)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Exit 1 when findings remain after the attempt budget (env: ARL_STRICT)")
	cmd.Flags().BoolVar(&flags.autofix, "autofix", true, "Allow the agent to apply fixes (env: ARL_AUTOFIX)")
	cmd.Flags().BoolVar(&flags.noAutofix, "no-autofix", false, "Disable agent autofixes")
	cmd.Flags().BoolVar(&flags.autopush, "autopush", false, "Commit and push applied fixes before publishing (env: ARL_AUTOPUSH)")
	cmd.Flags().BoolVar(&flags.noPublish, "no-publish", false, "Skip publishing the review gate marker")
	cmd.Flags().StringVar(&flags.followupLabel, "followup-label", "", "Label for created follow-up issues (env: ARL_FOLLOWUP_LABEL)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Run one pass without mutating any remote state")
	cmd.Flags().BoolVar(&flags.skipGate, "skip-gate", false, "Post a skip marker instead of reviewing")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose output")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file path (default: .arl.yaml in repo root)")
	cmd.Flags().BoolVar(&flags.noConfig, "no-config", false, "Skip loading the config file")

	return cmd
}

func runReview(cmd *cobra.Command, flags reviewFlags) error {
	logger := newLogger()
	ctx, cancel := signalContext(logger)
	defer cancel()

	if flags.issue == "" {
		logger.Log("--issue is required", terminal.StyleError)
		return exitCode(domain.ExitError)
	}

	repo := git.Open("")
	root, err := repo.Root(ctx)
	if err != nil {
		logger.Logf(terminal.StyleError, "%v", err)
		return exitCode(domain.ExitError)
	}

	resolved, err := resolveReviewConfig(cmd, flags, root, logger)
	if err != nil {
		logger.Logf(terminal.StyleError, "Config error: %v", err)
		return exitCode(domain.ExitError)
	}

	if err := github.CheckAvailable(); err != nil {
		logger.Logf(terminal.StyleError, "gh CLI is required: %v", err)
		return exitCode(domain.ExitError)
	}
	client := github.NewCLIClient()

	identity, err := resolveIdentity(ctx, client, repo, flags.pr)
	if err != nil {
		switch {
		case errors.Is(err, github.ErrNoPRFound):
			logger.Log("No open PR found for the current branch", terminal.StyleError)
		case errors.Is(err, github.ErrAuthFailed):
			logger.Log("GitHub authentication failed. Run 'gh auth login' to authenticate.", terminal.StyleError)
		default:
			logger.Logf(terminal.StyleError, "%v", err)
		}
		return exitCode(domain.ExitError)
	}

	issue := resolveIssueRef(ctx, client, identity.repo, flags.issue)

	// Cross-run state drives provider stickiness and session resume.
	statePath, stateErr := runcache.DefaultPath()
	var state runcache.State
	if stateErr == nil {
		state = runcache.Load(statePath)
	}

	runCfg := runner.Config{
		Workspace:     root,
		Repo:          identity.repo,
		Branch:        identity.branch,
		BaseBranch:    identity.base,
		Head:          identity.head,
		Issue:         issue,
		PR:            agent.PRRef{Number: identity.pr.Number, URL: identity.pr.URL},
		MaxAttempts:   resolved.MaxAttempts,
		Autofix:       resolved.Autofix,
		Autopush:      resolved.Autopush,
		Publish:       resolved.Publish,
		Strict:        resolved.Strict,
		DryRun:        flags.dryRun,
		SkipGate:      flags.skipGate,
		FollowupLabel: resolved.FollowupLabel,
	}
	policyKey := runCfg.PolicyKey()

	plan, err := agent.ResolvePlan(agent.DispatchConfig{
		Explicit:      resolved.Agent,
		RawCommand:    resolved.AgentCmd,
		Binary:        resolved.Binary,
		LastProvider:  state.Provider,
		ResumeToken:   state.ResumeToken,
		LastPolicyKey: state.PolicyKey,
		PolicyKey:     policyKey,
		Getenv:        os.Getenv,
		LookPath:      exec.LookPath,
	})
	if err != nil {
		logger.Logf(terminal.StyleError, "%v", err)
		return exitCode(domain.ExitError)
	}
	if flags.verbose {
		logger.Logf(terminal.StyleDim, "Agent plan: %s %s", plan.Mode, plan.Provider)
	}

	invoker := agent.NewInvoker(root)
	r := &runner.Runner{
		Config: runCfg,
		Client: client,
		Plan:   plan,
		Invoke: invoker.Invoke,
		Git:    repo,
		Logger: logger,
	}

	runCtx := ctx
	if resolved.Timeout > 0 {
		var cancelRun context.CancelFunc
		runCtx, cancelRun = context.WithTimeout(ctx, resolved.Timeout)
		defer cancelRun()
	}

	result, runErr := r.Run(runCtx)
	if runErr != nil {
		if ctx.Err() != nil {
			return exitCode(domain.ExitInterrupted)
		}
		logger.Logf(terminal.StyleError, "%v", runErr)
		return exitCode(result.ExitCode)
	}

	if stateErr == nil && result.Reason.Mutates() && plan.Mode == agent.ModeProvider {
		saved := runcache.State{
			Provider:    string(plan.Provider),
			ResumeToken: result.SessionID,
			PolicyKey:   policyKey,
		}
		if err := runcache.Save(statePath, saved); err != nil && flags.verbose {
			logger.Logf(terminal.StyleDim, "Could not save run state: %v", err)
		}
	}

	return exitCode(result.ExitCode)
}

// resolveReviewConfig applies flag > env > file > default precedence.
func resolveReviewConfig(cmd *cobra.Command, flags reviewFlags, root string, logger *terminal.Logger) (config.ResolvedConfig, error) {
	var cfg *config.Config
	if !flags.noConfig {
		var result *config.LoadResult
		var err error
		if flags.configPath != "" {
			result, err = config.LoadFromPathWithWarnings(flags.configPath)
		} else {
			result, err = config.LoadFromDirWithWarnings(root)
		}
		if err != nil {
			return config.ResolvedConfig{}, err
		}
		cfg = result.Config
		for _, warning := range result.Warnings {
			logger.Logf(terminal.StyleWarning, "Warning: %s", warning)
		}
	}

	flagState := config.FlagState{
		AgentSet:         cmd.Flags().Changed("agent"),
		AgentCmdSet:      cmd.Flags().Changed("agent-cmd"),
		BinarySet:        cmd.Flags().Changed("binary"),
		MaxAttemptsSet:   cmd.Flags().Changed("max-attempts"),
		StrictSet:        cmd.Flags().Changed("strict"),
		AutofixSet:       cmd.Flags().Changed("autofix") || cmd.Flags().Changed("no-autofix"),
		AutopushSet:      cmd.Flags().Changed("autopush"),
		PublishSet:       cmd.Flags().Changed("no-publish"),
		FollowupLabelSet: cmd.Flags().Changed("followup-label"),
	}

	flagValues := config.ResolvedConfig{
		Agent:         flags.agentName,
		AgentCmd:      flags.agentCmd,
		Binary:        flags.binary,
		MaxAttempts:   flags.maxAttempts,
		Strict:        flags.strict,
		Autofix:       flags.autofix && !flags.noAutofix,
		Autopush:      flags.autopush,
		Publish:       !flags.noPublish,
		FollowupLabel: flags.followupLabel,
	}

	resolved := config.Resolve(cfg, config.LoadEnvState(), flagState, flagValues)
	if resolved.MaxAttempts < 1 {
		return config.ResolvedConfig{}, fmt.Errorf("max-attempts must be >= 1, got %d", resolved.MaxAttempts)
	}
	return resolved, nil
}

// prIdentity ties together everything needed to address the PR under review.
type prIdentity struct {
	repo   string
	branch string
	base   string
	head   string
	pr     *github.PullRequest
}

// resolveIdentity determines repo slug, branch, head sha, and the PR, either
// by explicit number or by the checked-out branch.
func resolveIdentity(ctx context.Context, client github.Client, repo *git.Repo, prNumber int) (*prIdentity, error) {
	slug, err := repo.RepoSlug(ctx)
	if err != nil {
		return nil, err
	}
	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	head, err := repo.HeadSHA(ctx)
	if err != nil {
		return nil, err
	}

	var pr *github.PullRequest
	if prNumber > 0 {
		pr, err = client.ViewPR(ctx, slug, prNumber)
	} else {
		pr, err = client.PRForBranch(ctx, slug, branch)
	}
	if err != nil {
		return nil, err
	}

	return &prIdentity{
		repo:   slug,
		branch: branch,
		base:   pr.BaseRefName,
		head:   head,
		pr:     pr,
	}, nil
}

// resolveIssueRef fills in the issue title and URL when the issue is still
// open; a closed or unlisted issue degrades to the bare id.
func resolveIssueRef(ctx context.Context, client github.Client, repo, issueID string) agent.IssueRef {
	ref := agent.IssueRef{ID: issueID}
	number, err := strconv.Atoi(issueID)
	if err != nil {
		return ref
	}
	issues, err := client.ListOpenIssues(ctx, repo, "")
	if err != nil {
		return ref
	}
	for _, issue := range issues {
		if issue.Number == number {
			ref.Title = issue.Title
			ref.URL = issue.URL
			return ref
		}
	}
	return ref
}
