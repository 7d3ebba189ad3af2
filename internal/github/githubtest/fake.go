// Package githubtest provides an in-memory fake of the github.Client
// interface for tests.
package githubtest

import (
	"context"
	"fmt"

	"github.com/richhaase/agentic-review-loop/internal/github"
)

// Fake implements github.Client with in-memory state and optional
// per-method error injection.
type Fake struct {
	PR       *github.PullRequest
	Comments []github.IssueComment
	Threads  []github.ReviewThread
	Issues   []github.Issue

	nextIssueNumber int
	nextCommentID   int64

	// Mutation log, in call order, e.g. "reply:THREAD1", "resolve:THREAD1",
	// "comment:42", "issue-create:101", "issue-edit:101", "issue-close:101".
	Calls []string

	// Errors maps a call-log key prefix to an injected error.
	Errors map[string]error
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{nextIssueNumber: 100, nextCommentID: 1000}
}

func (f *Fake) fail(key string) error {
	for prefix, err := range f.Errors {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return err
		}
	}
	return nil
}

func (f *Fake) record(key string) error {
	f.Calls = append(f.Calls, key)
	return f.fail(key)
}

func (f *Fake) ViewPR(ctx context.Context, repo string, number int) (*github.PullRequest, error) {
	if err := f.record(fmt.Sprintf("pr-view:%d", number)); err != nil {
		return nil, err
	}
	if f.PR == nil {
		return nil, github.ErrNoPRFound
	}
	return f.PR, nil
}

func (f *Fake) PRForBranch(ctx context.Context, repo, branch string) (*github.PullRequest, error) {
	if err := f.record("pr-branch:" + branch); err != nil {
		return nil, err
	}
	if f.PR == nil {
		return nil, github.ErrNoPRFound
	}
	return f.PR, nil
}

func (f *Fake) ListIssueComments(ctx context.Context, repo string, number int) ([]github.IssueComment, error) {
	if err := f.record(fmt.Sprintf("comments-list:%d", number)); err != nil {
		return nil, err
	}
	return f.Comments, nil
}

func (f *Fake) CreateIssueComment(ctx context.Context, repo string, number int, body string) error {
	if err := f.record(fmt.Sprintf("comment:%d", number)); err != nil {
		return err
	}
	f.nextCommentID++
	f.Comments = append(f.Comments, github.IssueComment{
		ID:     f.nextCommentID,
		Body:   body,
		Author: "arl-bot",
	})
	return nil
}

func (f *Fake) ListReviewThreads(ctx context.Context, repo string, number int) ([]github.ReviewThread, error) {
	if err := f.record(fmt.Sprintf("threads-list:%d", number)); err != nil {
		return nil, err
	}
	return f.Threads, nil
}

func (f *Fake) ReplyToThread(ctx context.Context, threadID, body string) error {
	if err := f.record("reply:" + threadID); err != nil {
		return err
	}
	for i := range f.Threads {
		if f.Threads[i].ID == threadID {
			f.Threads[i].Comments = append(f.Threads[i].Comments, github.ThreadComment{
				Body:   body,
				Author: "arl-bot",
			})
		}
	}
	return nil
}

func (f *Fake) ResolveThread(ctx context.Context, threadID string) error {
	if err := f.record("resolve:" + threadID); err != nil {
		return err
	}
	for i := range f.Threads {
		if f.Threads[i].ID == threadID {
			f.Threads[i].IsResolved = true
		}
	}
	return nil
}

func (f *Fake) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (int, error) {
	f.nextIssueNumber++
	number := f.nextIssueNumber
	if err := f.record(fmt.Sprintf("issue-create:%d", number)); err != nil {
		return 0, err
	}
	f.Issues = append(f.Issues, github.Issue{
		Number: number,
		Title:  title,
		Body:   body,
		Labels: labels,
		URL:    fmt.Sprintf("https://github.com/%s/issues/%d", repo, number),
	})
	return number, nil
}

func (f *Fake) EditIssueBody(ctx context.Context, repo string, number int, body string) error {
	if err := f.record(fmt.Sprintf("issue-edit:%d", number)); err != nil {
		return err
	}
	for i := range f.Issues {
		if f.Issues[i].Number == number {
			f.Issues[i].Body = body
		}
	}
	return nil
}

func (f *Fake) CloseIssue(ctx context.Context, repo string, number int) error {
	if err := f.record(fmt.Sprintf("issue-close:%d", number)); err != nil {
		return err
	}
	for i := len(f.Issues) - 1; i >= 0; i-- {
		if f.Issues[i].Number == number {
			f.Issues = append(f.Issues[:i], f.Issues[i+1:]...)
		}
	}
	return nil
}

func (f *Fake) ListOpenIssues(ctx context.Context, repo, label string) ([]github.Issue, error) {
	if err := f.record("issue-list:" + label); err != nil {
		return nil, err
	}
	return f.Issues, nil
}
