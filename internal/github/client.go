// Package github provides the remote PR/issue surface via the gh CLI.
// All calls run through the transient-retry executor.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/richhaase/agentic-review-loop/internal/execx"
)

// ErrNoPRFound indicates no pull request exists for the given branch.
var ErrNoPRFound = errors.New("no pull request found")

// ErrAuthFailed indicates GitHub authentication failed.
var ErrAuthFailed = errors.New("GitHub authentication failed")

// PullRequest holds the PR identity fields the loop needs.
type PullRequest struct {
	Number      int    `json:"number"`
	URL         string `json:"url"`
	HeadRefOid  string `json:"headRefOid"`
	HeadRefName string `json:"headRefName"`
	BaseRefName string `json:"baseRefName"`
}

// IssueComment is one comment on an issue or PR conversation.
type IssueComment struct {
	ID     int64  `json:"id"`
	Body   string `json:"body"`
	Author string `json:"author"`
}

// ThreadComment is one comment inside a review thread.
type ThreadComment struct {
	DatabaseID int64  `json:"databaseId"`
	Body       string `json:"body"`
	Author     string `json:"author"`
}

// ReviewThread is a remote review comment conversation.
type ReviewThread struct {
	ID         string
	IsResolved bool
	IsOutdated bool
	Path       string
	Line       int
	Comments   []ThreadComment
}

// Issue is a remote issue summary.
type Issue struct {
	Number int
	Title  string
	Body   string
	URL    string
	// Labels holds the label names, flattened from gh's label objects.
	Labels []string
}

// Client is the remote API surface consumed by the review loop. Consumers
// depend on this interface so tests can substitute fakes.
type Client interface {
	ViewPR(ctx context.Context, repo string, number int) (*PullRequest, error)
	PRForBranch(ctx context.Context, repo, branch string) (*PullRequest, error)
	ListIssueComments(ctx context.Context, repo string, number int) ([]IssueComment, error)
	CreateIssueComment(ctx context.Context, repo string, number int, body string) error
	ListReviewThreads(ctx context.Context, repo string, number int) ([]ReviewThread, error)
	ReplyToThread(ctx context.Context, threadID, body string) error
	ResolveThread(ctx context.Context, threadID string) error
	CreateIssue(ctx context.Context, repo, title, body string, labels []string) (int, error)
	EditIssueBody(ctx context.Context, repo string, number int, body string) error
	CloseIssue(ctx context.Context, repo string, number int) error
	ListOpenIssues(ctx context.Context, repo, label string) ([]Issue, error)
}

// runFunc matches execx.Run, injectable for tests.
type runFunc func(ctx context.Context, spec execx.Spec, policy execx.Policy) (execx.Output, error)

// CLIClient implements Client by shelling out to gh.
type CLIClient struct {
	// Policy is the retry policy applied to every call.
	Policy execx.Policy

	run runFunc
}

// NewCLIClient returns a gh-backed client with the default retry policy.
func NewCLIClient() *CLIClient {
	return &CLIClient{Policy: execx.DefaultPolicy(), run: execx.Run}
}

// CheckAvailable returns an error if the gh CLI is not on PATH.
func CheckAvailable() error {
	if _, err := exec.LookPath("gh"); err != nil {
		return fmt.Errorf("gh CLI not available: %w", err)
	}
	return nil
}

func (c *CLIClient) gh(ctx context.Context, input []byte, args ...string) (execx.Output, error) {
	run := c.run
	if run == nil {
		run = execx.Run
	}
	out, err := run(ctx, execx.Spec{Name: "gh", Args: args, Input: input}, c.Policy)
	if err != nil {
		return out, classifyGHError(out.Stderr, err)
	}
	return out, nil
}

// classifyGHError examines gh failure output and returns a typed error where
// callers branch on the cause.
func classifyGHError(stderr string, err error) error {
	lower := strings.ToLower(stderr)

	if strings.Contains(lower, "no pull request") || strings.Contains(lower, "could not find") {
		return ErrNoPRFound
	}
	if strings.Contains(lower, "401") ||
		strings.Contains(lower, "auth") ||
		strings.Contains(lower, "credentials") ||
		strings.Contains(lower, "login") {
		return ErrAuthFailed
	}
	return err
}

// ViewPR fetches PR identity by number.
func (c *CLIClient) ViewPR(ctx context.Context, repo string, number int) (*PullRequest, error) {
	out, err := c.gh(ctx, nil, "pr", "view", strconv.Itoa(number),
		"--repo", repo,
		"--json", "number,url,headRefOid,headRefName,baseRefName")
	if err != nil {
		return nil, err
	}
	var pr PullRequest
	if err := json.Unmarshal([]byte(out.Stdout), &pr); err != nil {
		return nil, fmt.Errorf("failed to parse pr view response: %w", err)
	}
	return &pr, nil
}

// PRForBranch fetches PR identity by head branch name.
func (c *CLIClient) PRForBranch(ctx context.Context, repo, branch string) (*PullRequest, error) {
	out, err := c.gh(ctx, nil, "pr", "view", branch,
		"--repo", repo,
		"--json", "number,url,headRefOid,headRefName,baseRefName")
	if err != nil {
		return nil, err
	}
	var pr PullRequest
	if err := json.Unmarshal([]byte(out.Stdout), &pr); err != nil {
		return nil, fmt.Errorf("failed to parse pr view response: %w", err)
	}
	return &pr, nil
}

// ListIssueComments fetches all conversation comments for an issue or PR,
// following pagination. Output is one JSON object per line via --jq.
func (c *CLIClient) ListIssueComments(ctx context.Context, repo string, number int) ([]IssueComment, error) {
	out, err := c.gh(ctx, nil, "api", "--paginate",
		fmt.Sprintf("repos/%s/issues/%d/comments", repo, number),
		"--jq", `.[] | {id: .id, body: .body, author: .user.login}`)
	if err != nil {
		return nil, err
	}

	var comments []IssueComment
	dec := json.NewDecoder(strings.NewReader(out.Stdout))
	for dec.More() {
		var cmt IssueComment
		if err := dec.Decode(&cmt); err != nil {
			return nil, fmt.Errorf("failed to parse comment listing: %w", err)
		}
		comments = append(comments, cmt)
	}
	return comments, nil
}

// CreateIssueComment appends a comment to an issue or PR conversation.
func (c *CLIClient) CreateIssueComment(ctx context.Context, repo string, number int, body string) error {
	_, err := c.gh(ctx, []byte(body), "issue", "comment", strconv.Itoa(number),
		"--repo", repo, "--body-file", "-")
	return err
}

const reviewThreadsQuery = `query($owner: String!, $name: String!, $number: Int!, $cursor: String) {
  repository(owner: $owner, name: $name) {
    pullRequest(number: $number) {
      reviewThreads(first: 100, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes {
          id
          isResolved
          isOutdated
          path
          line
          comments(first: 50) {
            nodes { databaseId body author { login } }
          }
        }
      }
    }
  }
}`

type reviewThreadsResponse struct {
	Data struct {
		Repository struct {
			PullRequest struct {
				ReviewThreads struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []struct {
						ID         string `json:"id"`
						IsResolved bool   `json:"isResolved"`
						IsOutdated bool   `json:"isOutdated"`
						Path       string `json:"path"`
						Line       int    `json:"line"`
						Comments   struct {
							Nodes []struct {
								DatabaseID int64  `json:"databaseId"`
								Body       string `json:"body"`
								Author     struct {
									Login string `json:"login"`
								} `json:"author"`
							} `json:"nodes"`
						} `json:"comments"`
					} `json:"nodes"`
				} `json:"reviewThreads"`
			} `json:"pullRequest"`
		} `json:"repository"`
	} `json:"data"`
}

// ListReviewThreads fetches every review thread on a PR, following GraphQL
// cursor pagination.
func (c *CLIClient) ListReviewThreads(ctx context.Context, repo string, number int) ([]ReviewThread, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	var threads []ReviewThread
	cursor := ""
	for {
		args := []string{"api", "graphql",
			"-f", "query=" + reviewThreadsQuery,
			"-F", "owner=" + owner,
			"-F", "name=" + name,
			"-F", fmt.Sprintf("number=%d", number),
		}
		if cursor != "" {
			args = append(args, "-F", "cursor="+cursor)
		}

		out, err := c.gh(ctx, nil, args...)
		if err != nil {
			return nil, err
		}

		var resp reviewThreadsResponse
		if err := json.Unmarshal([]byte(out.Stdout), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse review threads response: %w", err)
		}

		rt := resp.Data.Repository.PullRequest.ReviewThreads
		for _, node := range rt.Nodes {
			thread := ReviewThread{
				ID:         node.ID,
				IsResolved: node.IsResolved,
				IsOutdated: node.IsOutdated,
				Path:       node.Path,
				Line:       node.Line,
			}
			for _, cm := range node.Comments.Nodes {
				thread.Comments = append(thread.Comments, ThreadComment{
					DatabaseID: cm.DatabaseID,
					Body:       cm.Body,
					Author:     cm.Author.Login,
				})
			}
			threads = append(threads, thread)
		}

		if !rt.PageInfo.HasNextPage {
			return threads, nil
		}
		cursor = rt.PageInfo.EndCursor
	}
}

// ReplyToThread adds a reply comment to a review thread.
func (c *CLIClient) ReplyToThread(ctx context.Context, threadID, body string) error {
	const mutation = `mutation($threadId: ID!, $body: String!) {
  addPullRequestReviewThreadReply(input: {pullRequestReviewThreadId: $threadId, body: $body}) {
    comment { id }
  }
}`
	_, err := c.gh(ctx, nil, "api", "graphql",
		"-f", "query="+mutation,
		"-f", "threadId="+threadID,
		"-f", "body="+body)
	return err
}

// ResolveThread marks a review thread resolved.
func (c *CLIClient) ResolveThread(ctx context.Context, threadID string) error {
	const mutation = `mutation($threadId: ID!) {
  resolveReviewThread(input: {threadId: $threadId}) {
    thread { id isResolved }
  }
}`
	_, err := c.gh(ctx, nil, "api", "graphql",
		"-f", "query="+mutation,
		"-f", "threadId="+threadID)
	return err
}

// CreateIssue opens a new issue and returns its number, parsed from the
// issue URL gh prints.
func (c *CLIClient) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (int, error) {
	args := []string{"issue", "create", "--repo", repo, "--title", title, "--body-file", "-"}
	for _, label := range labels {
		args = append(args, "--label", label)
	}
	out, err := c.gh(ctx, []byte(body), args...)
	if err != nil {
		return 0, err
	}

	url := strings.TrimSpace(out.Stdout)
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return 0, fmt.Errorf("unexpected issue create output: %q", url)
	}
	number, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("unexpected issue create output: %q", url)
	}
	return number, nil
}

// EditIssueBody replaces an issue body.
func (c *CLIClient) EditIssueBody(ctx context.Context, repo string, number int, body string) error {
	_, err := c.gh(ctx, []byte(body), "issue", "edit", strconv.Itoa(number),
		"--repo", repo, "--body-file", "-")
	return err
}

// CloseIssue closes an issue.
func (c *CLIClient) CloseIssue(ctx context.Context, repo string, number int) error {
	_, err := c.gh(ctx, nil, "issue", "close", strconv.Itoa(number), "--repo", repo)
	return err
}

// ListOpenIssues lists open issues with their label names, optionally
// filtered by label.
func (c *CLIClient) ListOpenIssues(ctx context.Context, repo, label string) ([]Issue, error) {
	args := []string{"issue", "list", "--repo", repo, "--state", "open",
		"--json", "number,title,body,url,labels", "--limit", "200"}
	if label != "" {
		args = append(args, "--label", label)
	}
	out, err := c.gh(ctx, nil, args...)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		URL    string `json:"url"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := json.Unmarshal([]byte(out.Stdout), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse issue listing: %w", err)
	}

	issues := make([]Issue, 0, len(raw))
	for _, it := range raw {
		issue := Issue{Number: it.Number, Title: it.Title, Body: it.Body, URL: it.URL}
		for _, l := range it.Labels {
			issue.Labels = append(issue.Labels, l.Name)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo slug %q, want owner/name", repo)
	}
	return parts[0], parts[1], nil
}
