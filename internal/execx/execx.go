// Package execx runs external commands with bounded retry of transient
// failures. It is the single primitive wrapping every gh, git, and agent CLI
// invocation; it has no knowledge of review semantics.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Spec describes one external command invocation. Input is a byte slice
// rather than a reader so retries can resupply stdin.
type Spec struct {
	Name  string
	Args  []string
	Dir   string
	Input []byte
}

// Output captures the result of a successful (exit 0) invocation.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// SleepFunc waits for d or until ctx is done. Injectable for tests.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds retry behavior.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff holds per-retry waits; the last entry repeats if attempts
	// outnumber entries. An empty schedule retries immediately.
	Backoff []time.Duration
	// Sleep defaults to a context-aware timer wait.
	Sleep SleepFunc
}

// DefaultPolicy returns the retry policy used for remote API calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		Backoff:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// NoRetry returns a policy that runs the command exactly once.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// CommandError is returned after a command fails terminally, either because
// the error was not transient or because attempts were exhausted.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Attempts int
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s failed (exit %d, %d attempt(s))",
		e.Name, strings.Join(e.Args, " "), e.ExitCode, e.Attempts)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// transientSignatures match stderr/error text of failures worth retrying:
// connectivity problems, timeouts, and server-side 5xx responses. Permission
// and validation errors from the remote API never match.
var transientSignatures = []string{
	"connection reset",
	"connection refused",
	"connection closed",
	"broken pipe",
	"timeout",
	"timed out",
	"temporary failure",
	"tls handshake",
	"network is unreachable",
	"no such host",
	"rate limit",
	"http 500",
	"http 502",
	"http 503",
	"http 504",
	"500 internal server",
	"502 bad gateway",
	"503 service unavailable",
	"504 gateway",
}

// IsTransient reports whether failure text matches a known transient
// signature.
func IsTransient(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range transientSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes spec under policy. It returns the command output on the first
// attempt that exits zero, retries attempts whose failure looks transient,
// and otherwise returns a *CommandError immediately.
func Run(ctx context.Context, spec Spec, policy Policy) (Output, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	var lastErr *CommandError
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		out, err := runOnce(ctx, spec)
		if err == nil {
			return out, nil
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		lastErr = &CommandError{
			Name:     spec.Name,
			Args:     spec.Args,
			ExitCode: exitCode,
			Stderr:   out.Stderr,
			Attempts: attempt,
			Err:      err,
		}

		if ctx.Err() != nil {
			return out, lastErr
		}
		if !IsTransient(out.Stderr + " " + err.Error()) {
			return out, lastErr
		}
		if attempt < policy.MaxAttempts {
			if err := sleep(ctx, backoffFor(policy.Backoff, attempt-1)); err != nil {
				return out, lastErr
			}
		}
	}
	return Output{Stderr: lastErr.Stderr, ExitCode: lastErr.ExitCode}, lastErr
}

func backoffFor(schedule []time.Duration, i int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if i >= len(schedule) {
		i = len(schedule) - 1
	}
	return schedule[i]
}

func runOnce(ctx context.Context, spec Spec) (Output, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if spec.Input != nil {
		cmd.Stdin = bytes.NewReader(spec.Input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			out.ExitCode = -1
		}
		return out, err
	}
	return out, nil
}
