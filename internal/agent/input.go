// Package agent resolves which external review agent to invoke, runs it, and
// parses its semi-structured output into a validated AgentOutput.
package agent

import (
	"encoding/json"
	"fmt"

	"github.com/richhaase/agentic-review-loop/internal/domain"
)

// InputVersion is the version of the review-context contract sent to agents.
const InputVersion = 1

// IssueRef identifies the source issue for a review run.
type IssueRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PRRef identifies the pull request under review.
type PRRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// ReviewInput is the JSON object sent on the agent's input stream. It is the
// agent's entire view of the unit of work.
type ReviewInput struct {
	Version     int      `json:"version"`
	Workspace   string   `json:"workspace"`
	Repo        string   `json:"repo"`
	Issue       IssueRef `json:"issue"`
	Branch      string   `json:"branch"`
	BaseBranch  string   `json:"base_branch"`
	PR          PRRef    `json:"pr"`
	Attempt     int      `json:"attempt"`
	MaxAttempts int      `json:"max_attempts"`
	Autofix     bool     `json:"autofix"`
	Passes      []string `json:"passes"`
}

// NewReviewInput builds the input contract for one attempt, stamping the
// version and the fixed pass list.
func NewReviewInput(workspace, repo string, issue IssueRef, branch, base string, pr PRRef, attempt, maxAttempts int, autofix bool) ReviewInput {
	passes := make([]string, len(domain.RequiredPasses))
	for i, p := range domain.RequiredPasses {
		passes[i] = string(p)
	}
	return ReviewInput{
		Version:     InputVersion,
		Workspace:   workspace,
		Repo:        repo,
		Issue:       issue,
		Branch:      branch,
		BaseBranch:  base,
		PR:          pr,
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Autofix:     autofix,
		Passes:      passes,
	}
}

// Encode serializes the input contract.
func (in ReviewInput) Encode() ([]byte, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode review input: %w", err)
	}
	return data, nil
}
