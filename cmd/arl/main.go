// Package main provides the CLI entry point for the agentic review loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
)

// Populated via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:   "arl",
		Short: "Agentic review loop - multi-pass code review for PRs",
		Long: `Run a multi-pass agent review against a pull request until every finding
is resolved or attempts run out, tracking leftovers in a follow-up issue.

Exit codes:
  0 - Resolved (or exhausted without --strict)
  1 - Unresolved findings under --strict, or batch failures
  2 - Error
  130 - Interrupted`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.AddCommand(newReviewCmd())
	rootCmd.AddCommand(newThreadsCmd())
	rootCmd.AddCommand(newGateCmd())

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(exitCodeError); ok {
			return exitErr.code.Int()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return domain.ExitError.Int()
	}

	return 0
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(logger *terminal.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr)
		logger.Log("Interrupted, shutting down...", terminal.StyleWarning)
		cancel()
	}()

	return ctx, cancel
}

func newLogger() *terminal.Logger {
	if !terminal.IsStdoutTTY() {
		terminal.SetColorsEnabled(false)
	}
	return terminal.NewLogger()
}

// exitCodeError is a wrapper type for returning exit codes via error interface.
type exitCodeError struct {
	code domain.ExitCode
}

func (e exitCodeError) Error() string {
	switch e.code {
	case domain.ExitFailure:
		return "unresolved findings remain"
	case domain.ExitError:
		return "review failed with error"
	case domain.ExitInterrupted:
		return "review was interrupted"
	default:
		return fmt.Sprintf("exit code %d", e.code)
	}
}

func exitCode(code domain.ExitCode) error {
	if code == domain.ExitOK {
		return nil
	}
	return exitCodeError{code: code}
}
