// Package threads reconciles unresolved review threads: reply with an
// explanatory comment, then resolve, continuing past individual failures.
package threads

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/richhaase/agentic-review-loop/internal/findings"
	"github.com/richhaase/agentic-review-loop/internal/github"
	"github.com/richhaase/agentic-review-loop/internal/terminal"
)

// Status is the per-thread reconciliation outcome.
type Status string

const (
	StatusPlanned  Status = "planned"
	StatusReplied  Status = "replied"
	StatusResolved Status = "resolved"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Options selects which threads to reconcile and how.
type Options struct {
	// ThreadIDs names explicit threads. Mutually exclusive with
	// AllUnresolved.
	ThreadIDs []string
	// AllUnresolved targets every unresolved managed thread, outdated
	// included. Threads without a fingerprint marker, or with comments from
	// other participants, are skipped; naming them in ThreadIDs overrides.
	AllUnresolved bool
	// Body overrides the composed reply body.
	Body   string
	DryRun bool

	Repo string
	PR   int
	Head string
}

// Validate rejects contradictory selections before any remote call.
func (o Options) Validate() error {
	if len(o.ThreadIDs) > 0 && o.AllUnresolved {
		return fmt.Errorf("--thread and --all-unresolved are mutually exclusive")
	}
	if len(o.ThreadIDs) == 0 && !o.AllUnresolved {
		return fmt.Errorf("nothing to reconcile: pass --thread or --all-unresolved")
	}
	return nil
}

// Result records one thread's outcome.
type Result struct {
	ThreadID string
	Status   Status
	Detail   string
	Body     string
}

// Reconciler replies to and resolves review threads.
type Reconciler struct {
	Client github.Client
	Logger *terminal.Logger
	// Out receives the dry-run plan table.
	Out io.Writer
}

// Run reconciles the selected threads. Mutations continue past individual
// failures; a non-nil error is returned when any thread's mutation failed,
// alongside the full per-thread results.
func (r *Reconciler) Run(ctx context.Context, opts Options) ([]Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	all, err := r.Client.ListReviewThreads(ctx, opts.Repo, opts.PR)
	if err != nil {
		return nil, fmt.Errorf("failed to list review threads: %w", err)
	}

	targets, results := r.selectTargets(all, opts)

	if opts.DryRun {
		for _, t := range targets {
			results = append(results, Result{
				ThreadID: t.ID,
				Status:   StatusPlanned,
				Body:     r.replyBody(t, opts),
			})
		}
		r.printPlan(results)
		return results, nil
	}

	for _, t := range targets {
		results = append(results, r.reconcileOne(ctx, t, opts))
	}

	failed := 0
	for _, res := range results {
		// A replied-but-unresolved thread is still a failed mutation.
		if res.Status == StatusFailed || res.Status == StatusReplied {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d thread(s) failed", failed, len(results))
	}
	return results, nil
}

// selectTargets resolves the selection to concrete threads. Threads that
// cannot be acted on are reported up front as skipped or failed results.
func (r *Reconciler) selectTargets(all []github.ReviewThread, opts Options) ([]github.ReviewThread, []Result) {
	var targets []github.ReviewThread
	var results []Result

	if opts.AllUnresolved {
		for _, t := range all {
			if t.IsResolved {
				continue
			}
			tf, ok := findings.FromThread(t)
			switch {
			case !ok:
				results = append(results, Result{ThreadID: t.ID, Status: StatusSkipped, Detail: "not a managed thread"})
			case tf.Mixed:
				results = append(results, Result{ThreadID: t.ID, Status: StatusSkipped, Detail: "has comments from other participants"})
			default:
				targets = append(targets, t)
			}
		}
		return targets, results
	}

	byID := make(map[string]github.ReviewThread, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}
	for _, id := range opts.ThreadIDs {
		t, ok := byID[id]
		switch {
		case !ok:
			results = append(results, Result{ThreadID: id, Status: StatusFailed, Detail: "no such thread on PR"})
		case t.IsResolved:
			results = append(results, Result{ThreadID: id, Status: StatusSkipped, Detail: "already resolved"})
		default:
			targets = append(targets, t)
		}
	}
	return targets, results
}

func (r *Reconciler) reconcileOne(ctx context.Context, t github.ReviewThread, opts Options) Result {
	body := r.replyBody(t, opts)

	if err := r.Client.ReplyToThread(ctx, t.ID, body); err != nil {
		r.warnf("Reply to thread %s failed: %v", t.ID, err)
		return Result{ThreadID: t.ID, Status: StatusFailed, Detail: fmt.Sprintf("reply: %v", err), Body: body}
	}
	if err := r.Client.ResolveThread(ctx, t.ID); err != nil {
		r.warnf("Resolve of thread %s failed: %v", t.ID, err)
		return Result{ThreadID: t.ID, Status: StatusReplied, Detail: fmt.Sprintf("resolve: %v", err), Body: body}
	}
	return Result{ThreadID: t.ID, Status: StatusResolved, Body: body}
}

// replyBody composes the reply posted before resolving, unless the operator
// supplied one.
func (r *Reconciler) replyBody(t github.ReviewThread, opts Options) string {
	if opts.Body != "" {
		return opts.Body
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Resolving this thread on PR #%d", opts.PR)
	if opts.Head != "" {
		fmt.Fprintf(&b, " at head `%s`", opts.Head)
	}
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "- Thread: `%s`\n", t.ID)
	if t.Path != "" {
		fmt.Fprintf(&b, "- Location: `%s:%d`\n", t.Path, t.Line)
	}
	if t.IsOutdated {
		b.WriteString("- The thread is outdated: the commented lines have since changed.\n")
	}
	if tf, ok := findings.FromThread(t); ok {
		f := tf.Tracked.Finding
		fmt.Fprintf(&b, "- Finding: [%s/%s] %s (`%s`)\n",
			f.Severity, f.Pass, f.Title, tf.Tracked.Fingerprint)
	}
	return b.String()
}

func (r *Reconciler) printPlan(results []Result) {
	if r.Out == nil {
		return
	}
	table := tablewriter.NewTable(r.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header([]string{"Thread", "Status", "Reply"})
	for _, res := range results {
		table.Append([]string{res.ThreadID, string(res.Status), preview(res.Body, 60)})
	}
	table.Render()
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (r *Reconciler) warnf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Logf(terminal.StyleWarning, format, args...)
	}
}
