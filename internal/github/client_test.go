package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richhaase/agentic-review-loop/internal/execx"
)

func TestClassifyGHError(t *testing.T) {
	base := errors.New("exit status 1")
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"no pr", "no pull request found for branch feature-x", ErrNoPRFound},
		{"auth", "HTTP 401: Bad credentials", ErrAuthFailed},
		{"login", "To get started with GitHub CLI, please run: gh auth login", ErrAuthFailed},
		{"generic", "HTTP 422: Validation Failed", base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyGHError(tt.stderr, base)
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestSplitRepo(t *testing.T) {
	owner, name, err := splitRepo("richhaase/agentic-review-loop")
	require.NoError(t, err)
	assert.Equal(t, "richhaase", owner)
	assert.Equal(t, "agentic-review-loop", name)

	_, _, err = splitRepo("not-a-slug")
	assert.Error(t, err)

	_, _, err = splitRepo("a/b/c")
	assert.Error(t, err)
}

// stubClient returns a CLIClient whose gh invocations are served from canned
// outputs keyed by invocation order.
func stubClient(outputs []execx.Output, errs []error, calls *[]execx.Spec) *CLIClient {
	i := 0
	return &CLIClient{
		Policy: execx.NoRetry(),
		run: func(ctx context.Context, spec execx.Spec, policy execx.Policy) (execx.Output, error) {
			*calls = append(*calls, spec)
			out := outputs[i]
			var err error
			if i < len(errs) {
				err = errs[i]
			}
			i++
			return out, err
		},
	}
}

func TestListIssueComments(t *testing.T) {
	var calls []execx.Spec
	c := stubClient([]execx.Output{{
		Stdout: `{"id": 1, "body": "first", "author": "alice"}
{"id": 2, "body": "second", "author": "bob"}
`,
	}}, nil, &calls)

	comments, err := c.ListIssueComments(context.Background(), "o/r", 7)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, int64(1), comments[0].ID)
	assert.Equal(t, "bob", comments[1].Author)

	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Args, "--paginate")
	assert.Contains(t, calls[0].Args, "repos/o/r/issues/7/comments")
}

func TestListReviewThreadsPaginates(t *testing.T) {
	page1 := `{"data":{"repository":{"pullRequest":{"reviewThreads":{
		"pageInfo":{"hasNextPage":true,"endCursor":"CUR1"},
		"nodes":[{"id":"T1","isResolved":false,"isOutdated":true,"path":"a.go","line":3,
			"comments":{"nodes":[{"databaseId":10,"body":"b1","author":{"login":"alice"}}]}}]}}}}}`
	page2 := `{"data":{"repository":{"pullRequest":{"reviewThreads":{
		"pageInfo":{"hasNextPage":false,"endCursor":""},
		"nodes":[{"id":"T2","isResolved":true,"isOutdated":false,"path":"b.go","line":9,
			"comments":{"nodes":[]}}]}}}}}`

	var calls []execx.Spec
	c := stubClient([]execx.Output{{Stdout: page1}, {Stdout: page2}}, nil, &calls)

	threads, err := c.ListReviewThreads(context.Background(), "o/r", 5)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "T1", threads[0].ID)
	assert.True(t, threads[0].IsOutdated)
	assert.Equal(t, "alice", threads[0].Comments[0].Author)
	assert.True(t, threads[1].IsResolved)

	// Second call must carry the cursor from page one.
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Args, "cursor=CUR1")
}

func TestCreateIssueParsesNumber(t *testing.T) {
	var calls []execx.Spec
	c := stubClient([]execx.Output{{Stdout: "https://github.com/o/r/issues/42\n"}}, nil, &calls)

	number, err := c.CreateIssue(context.Background(), "o/r", "title", "body", []string{"bug"})
	require.NoError(t, err)
	assert.Equal(t, 42, number)

	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Args, "--label")
	assert.Equal(t, []byte("body"), calls[0].Input)
}

func TestListOpenIssuesMapsLabels(t *testing.T) {
	var calls []execx.Spec
	c := stubClient([]execx.Output{{
		Stdout: `[{"number": 12, "title": "Flaky cache eviction", "body": "b",
"url": "https://github.com/o/r/issues/12",
"labels": [{"id": 1, "name": "bug"}, {"id": 2, "name": "p1"}]}]`,
	}}, nil, &calls)

	issues, err := c.ListOpenIssues(context.Background(), "o/r", "")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 12, issues[0].Number)
	assert.Equal(t, []string{"bug", "p1"}, issues[0].Labels)

	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Args, "number,title,body,url,labels")
}

func TestCreateIssueBadOutput(t *testing.T) {
	var calls []execx.Spec
	c := stubClient([]execx.Output{{Stdout: "something went sideways"}}, nil, &calls)

	_, err := c.CreateIssue(context.Background(), "o/r", "t", "b", nil)
	assert.Error(t, err)
}
