package domain

// ExitCode represents the process exit status of the review loop.
type ExitCode int

const (
	// ExitOK indicates a clean termination (resolved, dry-run, or a
	// non-strict exhausted run).
	ExitOK ExitCode = 0
	// ExitFailure indicates unresolved findings under strict mode, or a
	// batch operation with partial failures.
	ExitFailure ExitCode = 1
	// ExitError indicates the run failed due to an unrecoverable error.
	ExitError ExitCode = 2
	// ExitInterrupted indicates the run was interrupted by a signal.
	ExitInterrupted ExitCode = 130
)

// Int returns the exit code as an int for use with os.Exit.
func (e ExitCode) Int() int {
	return int(e)
}
