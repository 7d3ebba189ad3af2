// Package git provides the working-tree operations the review loop needs:
// identity queries, autofix commits, and pushing the head branch.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/richhaase/agentic-review-loop/internal/execx"
)

// runFunc executes a command spec. Variable so tests can substitute.
type runFunc func(ctx context.Context, spec execx.Spec, policy execx.Policy) (execx.Output, error)

// Repo runs git commands in a working directory.
type Repo struct {
	// Dir is the working directory; empty means the process cwd.
	Dir string
	run runFunc
}

// Open returns a Repo for dir.
func Open(dir string) *Repo {
	return &Repo{Dir: dir, run: execx.Run}
}

// query runs a read-only git command and returns trimmed stdout.
func (r *Repo) query(ctx context.Context, args ...string) (string, error) {
	out, err := r.run(ctx, execx.Spec{Name: "git", Args: args, Dir: r.Dir}, execx.NoRetry())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// Root returns the repository root directory.
func (r *Repo) Root(ctx context.Context) (string, error) {
	root, err := r.query(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not inside a git repository: %w", err)
	}
	return root, nil
}

// HeadSHA returns the full SHA of HEAD.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	sha, err := r.query(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return sha, nil
}

// CurrentBranch returns the checked-out branch name. Fails on a detached
// HEAD.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := r.query(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve current branch: %w", err)
	}
	if branch == "HEAD" {
		return "", fmt.Errorf("detached HEAD: check out a branch first")
	}
	return branch, nil
}

// RepoSlug returns "owner/name" parsed from the origin remote URL.
func (r *Repo) RepoSlug(ctx context.Context) (string, error) {
	url, err := r.query(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("failed to read origin remote: %w", err)
	}
	slug, ok := ParseRemoteURL(url)
	if !ok {
		return "", fmt.Errorf("could not parse owner/repo from remote url: %s", url)
	}
	return slug, nil
}

// ParseRemoteURL extracts "owner/name" from SSH and HTTPS remote URLs.
func ParseRemoteURL(url string) (string, bool) {
	url = strings.TrimSuffix(strings.TrimSpace(url), ".git")

	// git@github.com:owner/repo
	if _, after, found := strings.Cut(url, ":"); found && !strings.Contains(url, "://") {
		return validateSlug(after)
	}
	// https://github.com/owner/repo, ssh://git@github.com/owner/repo
	if _, after, found := strings.Cut(url, "://"); found {
		parts := strings.SplitN(after, "/", 2)
		if len(parts) == 2 {
			return validateSlug(parts[1])
		}
	}
	return "", false
}

func validateSlug(s string) (string, bool) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "/" + parts[1], true
}

// StatusPorcelain returns `git status --porcelain` output.
func (r *Repo) StatusPorcelain(ctx context.Context) (string, error) {
	status, err := r.query(ctx, "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("failed to read working tree status: %w", err)
	}
	return status, nil
}

// HasUncommitted reports whether the working tree has uncommitted changes.
func (r *Repo) HasUncommitted(ctx context.Context) (bool, error) {
	status, err := r.StatusPorcelain(ctx)
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// CommitAll stages everything and commits with the given message.
func (r *Repo) CommitAll(ctx context.Context, message string) error {
	if _, err := r.run(ctx, execx.Spec{Name: "git", Args: []string{"add", "-A"}, Dir: r.Dir}, execx.NoRetry()); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	if _, err := r.run(ctx, execx.Spec{Name: "git", Args: []string{"commit", "-m", message}, Dir: r.Dir}, execx.NoRetry()); err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}
	return nil
}

// Push pushes branch to origin. Transient network failures are retried.
func (r *Repo) Push(ctx context.Context, branch string) error {
	spec := execx.Spec{Name: "git", Args: []string{"push", "origin", branch}, Dir: r.Dir}
	if _, err := r.run(ctx, spec, execx.DefaultPolicy()); err != nil {
		return fmt.Errorf("failed to push %s: %w", branch, err)
	}
	return nil
}
