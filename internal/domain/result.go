package domain

// TerminationReason describes why a review loop ended.
type TerminationReason string

const (
	TerminationResolved    TerminationReason = "resolved"
	TerminationExhausted   TerminationReason = "max-attempts-exhausted"
	TerminationStrictFail  TerminationReason = "strict-failed"
	TerminationDryRun      TerminationReason = "dry-run-complete"
	TerminationGateSkipped TerminationReason = "gate-skipped"
	TerminationAgentError  TerminationReason = "agent-error"
)

// Mutates reports whether a run ending in this state is permitted to write
// gate markers or touch the follow-up issue.
func (r TerminationReason) Mutates() bool {
	return r != TerminationDryRun && r != TerminationGateSkipped
}
