package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/git"
	"github.com/richhaase/agentic-review-loop/internal/github"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
	"github.com/richhaase/agentic-review-loop/internal/threads"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Operate on PR review threads",
	}
	cmd.AddCommand(newThreadsResolveCmd())
	return cmd
}

func newThreadsResolveCmd() *cobra.Command {
	var (
		pr            int
		threadIDs     []string
		allUnresolved bool
		body          string
		dryRun        bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Reply to and resolve review threads",
		Long: `Reply to each selected thread with an explanatory comment, then resolve
it. Failures on one thread do not stop the others; any failure yields a
non-zero exit while successes are still reported.`,
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

			opts := threads.Options{
				ThreadIDs:     threadIDs,
				AllUnresolved: allUnresolved,
				Body:          body,
				DryRun:        dryRun,
				Repo:          identity.repo,
				PR:            identity.pr.Number,
				Head:          identity.head,
			}
			if err := opts.Validate(); err != nil {
				logger.Logf(terminal.StyleError, "%v", err)
				return exitCode(domain.ExitError)
			}

			r := &threads.Reconciler{Client: client, Logger: logger, Out: os.Stdout}
			results, err := r.Run(ctx, opts)
			for _, res := range results {
				style := terminal.StyleSuccess
				switch res.Status {
				case threads.StatusFailed:
					style = terminal.StyleError
				case threads.StatusReplied, threads.StatusSkipped:
					style = terminal.StyleWarning
				}
				detail := ""
				if res.Detail != "" {
					detail = " (" + res.Detail + ")"
				}
				logger.Logf(style, "%s: %s%s", res.ThreadID, res.Status, detail)
			}
			if err != nil {
				logger.Logf(terminal.StyleError, "%v", err)
				return exitCode(domain.ExitFailure)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pr, "pr", 0, "PR number (default: detect from current branch)")
	cmd.Flags().StringArrayVar(&threadIDs, "thread", nil, "Thread id to resolve (repeatable)")
	cmd.Flags().BoolVar(&allUnresolved, "all-unresolved", false, "Resolve every unresolved thread, outdated included")
	cmd.Flags().StringVar(&body, "body", "", "Reply body (default: composed from thread and finding)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without mutating anything")

	return cmd
}
