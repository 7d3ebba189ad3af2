package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richhaase/agentic-review-loop/internal/domain"
	"github.com/richhaase/agentic-review-loop/internal/execx"
)

// InvokeResult captures one normalized agent invocation, including resume
// bookkeeping for session-capable providers.
type InvokeResult struct {
	Output *domain.AgentOutput
	Raw    string
	// ResumeAttempted reports that a same-session resume invocation ran.
	ResumeAttempted bool
	// ResumeFellBack reports that the resume invocation failed (non-zero
	// exit or unparsable output) and a fresh invocation ran instead.
	ResumeFellBack bool
	// SessionID is the provider session identifier observed in the output,
	// usable as a resume token on the next run.
	SessionID string
}

// Invoker runs execution plans. The run function defaults to execx.Run and
// is injectable for tests.
type Invoker struct {
	Policy  execx.Policy
	WorkDir string

	run func(ctx context.Context, spec execx.Spec, policy execx.Policy) (execx.Output, error)
}

// NewInvoker returns an Invoker executing agents without retry: a failed
// agent run consumes a loop attempt instead of being retried blindly.
func NewInvoker(workDir string) *Invoker {
	return &Invoker{Policy: execx.NoRetry(), WorkDir: workDir, run: execx.Run}
}

// Invoke executes the plan with the given review input and parses the
// result. For the codex provider with a resume token, a resume invocation is
// tried first; a non-zero exit or output that fails validation falls back to
// a fresh invocation.
func (iv *Invoker) Invoke(ctx context.Context, plan *ExecutionPlan, input ReviewInput) (*InvokeResult, error) {
	payload, err := input.Encode()
	if err != nil {
		return nil, err
	}

	res := &InvokeResult{}

	if plan.Mode == ModeProvider && plan.Provider == ProviderCodex && plan.ResumeToken != "" {
		res.ResumeAttempted = true
		raw, runErr := iv.runSpec(ctx, iv.codexSpec(plan, payload, plan.ResumeToken))
		if runErr == nil {
			if out, parseErr := ParseOutput(raw); parseErr == nil {
				res.Output = out
				res.Raw = raw
				res.SessionID = findSessionID(raw)
				return res, nil
			}
		}
		res.ResumeFellBack = true
	}

	spec, err := iv.specFor(plan, payload)
	if err != nil {
		return res, err
	}
	raw, runErr := iv.runSpec(ctx, spec)
	res.Raw = raw
	if runErr != nil {
		return res, fmt.Errorf("agent invocation failed: %w", runErr)
	}

	out, parseErr := ParseOutput(raw)
	if parseErr != nil {
		return res, parseErr
	}
	res.Output = out
	res.SessionID = findSessionID(raw)
	return res, nil
}

func (iv *Invoker) runSpec(ctx context.Context, spec execx.Spec) (string, error) {
	run := iv.run
	if run == nil {
		run = execx.Run
	}
	out, err := run(ctx, spec, iv.Policy)
	return out.Stdout, err
}

func (iv *Invoker) specFor(plan *ExecutionPlan, payload []byte) (execx.Spec, error) {
	switch plan.Mode {
	case ModeCommand:
		return execx.Spec{
			Name:  "sh",
			Args:  []string{"-c", plan.Command},
			Dir:   iv.WorkDir,
			Input: payload,
		}, nil
	case ModeProvider:
		switch plan.Provider {
		case ProviderCodex:
			return iv.codexSpec(plan, payload, ""), nil
		case ProviderClaude:
			return execx.Spec{
				Name:  binaryFor(ProviderClaude, plan.Binary),
				Args:  []string{"-p", ReviewPrompt, "--output-format", "json"},
				Dir:   iv.WorkDir,
				Input: payload,
			}, nil
		case ProviderGemini:
			return execx.Spec{
				Name:  binaryFor(ProviderGemini, plan.Binary),
				Args:  []string{"-p", ReviewPrompt},
				Dir:   iv.WorkDir,
				Input: payload,
			}, nil
		}
	}
	return execx.Spec{}, fmt.Errorf("unresolvable execution plan: mode=%q provider=%q", plan.Mode, plan.Provider)
}

// codexSpec builds the codex invocation. The prompt and review context ride
// on stdin; resume reuses an existing session when token is non-empty.
func (iv *Invoker) codexSpec(plan *ExecutionPlan, payload []byte, token string) execx.Spec {
	args := []string{"exec"}
	if token != "" {
		args = append(args, "resume", token)
	}
	args = append(args, "--json", "--color", "never", "-")

	stdin := ReviewPrompt + "\n\nINPUT JSON:\n" + string(payload) + "\n"
	return execx.Spec{
		Name:  binaryFor(ProviderCodex, plan.Binary),
		Args:  args,
		Dir:   iv.WorkDir,
		Input: []byte(stdin),
	}
}

// findSessionID scans raw output lines for a session identifier emitted by
// session-capable providers.
func findSessionID(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var event struct {
			SessionID string `json:"session_id"`
			ThreadID  string `json:"thread_id"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.SessionID != "" {
			return event.SessionID
		}
		if event.ThreadID != "" {
			return event.ThreadID
		}
	}
	return ""
}
