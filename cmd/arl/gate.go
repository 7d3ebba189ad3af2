package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/richhaase/agentic-review-loop/internal/config"
	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/gate"
	"github.com/richhaase/agentic-review-loop/internal/git"
	"github.com/richhaase/agentic-review-loop/internal/github"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
)

func newGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Inspect or bypass the review gate",
	}
	cmd.AddCommand(newGateCheckCmd())
	cmd.AddCommand(newGateSkipCmd())
	return cmd
}

func newGateCheckCmd() *cobra.Command {
	var (
		pr       int
		wait     time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether the current head has a recorded review",
		Long: `Exit 0 when a review marker exists for the current head, 1 otherwise.
With --wait, poll until the gate is satisfied or the wait times out.
Markers written under a different policy do not satisfy the gate; explicit
skip markers never do.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx, cancel := signalContext(logger)
			defer cancel()

			if err := github.CheckAvailable(); err != nil {
				logger.Logf(terminal.StyleError, "gh CLI is required: %v", err)
				return exitCode(domain.ExitError)
			}
			client := github.NewCLIClient()

			repo := git.Open("")
			identity, err := resolveIdentity(ctx, client, repo, pr)
			if err != nil {
				logger.Logf(terminal.StyleError, "%v", err)
				return exitCode(domain.ExitError)
			}

			// The gate key reflects the effective review policy, so config
			// and env participate exactly as they would for a review run.
			root, err := repo.Root(ctx)
			if err != nil {
				logger.Logf(terminal.StyleError, "%v", err)
				return exitCode(domain.ExitError)
			}
			resolved, err := resolveGateConfig(root, logger)
			if err != nil {
				logger.Logf(terminal.StyleError, "Config error: %v", err)
				return exitCode(domain.ExitError)
			}
			key := gate.Policy{
				Autofix:     resolved.Autofix,
				Autopush:    resolved.Autopush,
				Publish:     resolved.Publish,
				Strict:      resolved.Strict,
				MaxAttempts: resolved.MaxAttempts,
			}.Key()

			var satisfied bool
			if wait > 0 {
				satisfied, err = gate.WaitSatisfied(ctx, client, identity.repo, identity.pr.Number, identity.head, key, interval, wait, nil)
			} else {
				satisfied, err = gate.HasReviewForHead(ctx, client, identity.repo, identity.pr.Number, identity.head, key)
			}
			if err != nil {
				logger.Logf(terminal.StyleError, "%v", err)
				return exitCode(domain.ExitError)
			}

			if satisfied {
				fmt.Printf("review gate satisfied for %s\n", identity.head)
				return nil
			}
			fmt.Printf("no review recorded for %s\n", identity.head)
			return exitCode(domain.ExitFailure)
		},
	}

	cmd.Flags().IntVar(&pr, "pr", 0, "PR number (default: detect from current branch)")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Poll until satisfied, up to this duration")
	cmd.Flags().DurationVar(&interval, "poll-interval", 15*time.Second, "Polling interval used with --wait")

	return cmd
}

// resolveGateConfig resolves the review policy from config file and env
// only; gate commands carry no policy flags of their own.
func resolveGateConfig(repoRoot string, logger *terminal.Logger) (config.ResolvedConfig, error) {
	result, err := config.LoadFromDirWithWarnings(repoRoot)
	if err != nil {
		return config.ResolvedConfig{}, err
	}
	for _, warning := range result.Warnings {
		logger.Logf(terminal.StyleWarning, "Warning: %s", warning)
	}
	return config.Resolve(result.Config, config.LoadEnvState(), config.FlagState{}, config.ResolvedConfig{}), nil
}

func newGateSkipCmd() *cobra.Command {
	var (
		pr     int
		reason string
	)

	cmd := &cobra.Command{
		Use:           "skip",
		Short:         "Post an explicit gate skip marker for the current head",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx, cancel := signalContext(logger)
			defer cancel()

			if err := github.CheckAvailable(); err != nil {
				logger.Logf(terminal.StyleError, "gh CLI is required: %v", err)
				return exitCode(domain.ExitError)
			}
			client := github.NewCLIClient()

			repo := git.Open("")
			identity, err := resolveIdentity(ctx, client, repo, pr)
			if err != nil {
				logger.Logf(terminal.StyleError, "%v", err)
				return exitCode(domain.ExitError)
			}

			if err := gate.PostSkip(ctx, client, identity.repo, identity.pr.Number, identity.head, reason); err != nil {
				logger.Logf(terminal.StyleError, "%v", err)
				return exitCode(domain.ExitError)
			}
			logger.Logf(terminal.StyleWarning, "Gate skip recorded for %s", identity.head)
			return nil
		},
	}

	cmd.Flags().IntVar(&pr, "pr", 0, "PR number (default: detect from current branch)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the gate is being skipped")

	return cmd
}
