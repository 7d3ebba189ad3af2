package agent

import (
	"fmt"
	"os"
	"os/exec"
)

// Provider names a known agent CLI backend.
type Provider string

const (
	ProviderCodex  Provider = "codex"
	ProviderClaude Provider = "claude"
	ProviderGemini Provider = "gemini"
)

// SupportedProviders lists valid provider names, in auto-detection order.
var SupportedProviders = []Provider{ProviderCodex, ProviderClaude, ProviderGemini}

// PlanMode discriminates how the agent is invoked.
type PlanMode string

const (
	// ModeCommand runs one fixed shell command with the serialized review
	// context on its input stream.
	ModeCommand PlanMode = "command"
	// ModeProvider invokes a known provider CLI.
	ModeProvider PlanMode = "provider"
)

// ExecutionPlan is one normalized agent invocation.
type ExecutionPlan struct {
	Mode     PlanMode
	Provider Provider
	// Binary overrides the provider CLI executable name.
	Binary string
	// Command is the raw shell command for ModeCommand.
	Command string
	// ResumeToken enables same-session resume for providers that support it.
	ResumeToken string
}

// DispatchConfig carries everything plan resolution considers. Getenv and
// LookPath default to the os/exec equivalents; tests inject them.
type DispatchConfig struct {
	// Explicit is the provider named on the command line ("" or "auto"
	// defers to the environment and cache).
	Explicit string
	// RawCommand forces ModeCommand with this shell command.
	RawCommand string
	// Binary overrides the provider executable.
	Binary string
	// LastProvider is the cached last-known provider, if any.
	LastProvider string
	// ResumeToken is the cached same-session token, if any.
	ResumeToken string
	// LastPolicyKey is the policy fingerprint cached alongside the token.
	LastPolicyKey string
	// PolicyKey is the current run's policy fingerprint. When it differs
	// from LastPolicyKey the cached token is stale and must not carry over.
	PolicyKey string

	Getenv   func(string) string
	LookPath func(string) (string, error)
}

// EnvAgent is the environment override for provider selection.
const EnvAgent = "ARL_AGENT"

// ResolvePlan builds exactly one ExecutionPlan. Precedence: raw command >
// explicit flag > ARL_AGENT > cached last-known provider > auto-detection by
// PATH lookup. The resume token is attached only when the resolved provider
// matches the cached one and the review policy has not changed since the
// token was cached.
func ResolvePlan(cfg DispatchConfig) (*ExecutionPlan, error) {
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookPath := cfg.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if cfg.RawCommand != "" {
		return &ExecutionPlan{Mode: ModeCommand, Command: cfg.RawCommand}, nil
	}

	name := cfg.Explicit
	if name == "" || name == "auto" {
		name = getenv(EnvAgent)
	}
	if name == "" && cfg.LastProvider != "" && isSupported(cfg.LastProvider) {
		if _, err := lookPath(binaryFor(Provider(cfg.LastProvider), cfg.Binary)); err == nil {
			name = cfg.LastProvider
		}
	}
	if name == "" {
		for _, p := range SupportedProviders {
			if _, err := lookPath(binaryFor(p, cfg.Binary)); err == nil {
				name = string(p)
				break
			}
		}
		if name == "" {
			return nil, fmt.Errorf("no review agent found in PATH (looked for codex, claude, gemini); use --agent or --agent-cmd")
		}
	}

	if !isSupported(name) {
		return nil, fmt.Errorf("unknown agent %q, supported: codex, claude, gemini", name)
	}

	plan := &ExecutionPlan{
		Mode:     ModeProvider,
		Provider: Provider(name),
		Binary:   cfg.Binary,
	}
	if name == cfg.LastProvider && (cfg.LastPolicyKey == "" || cfg.LastPolicyKey == cfg.PolicyKey) {
		plan.ResumeToken = cfg.ResumeToken
	}
	return plan, nil
}

func isSupported(name string) bool {
	for _, p := range SupportedProviders {
		if string(p) == name {
			return true
		}
	}
	return false
}

func binaryFor(p Provider, override string) string {
	if override != "" {
		return override
	}
	return string(p)
}
