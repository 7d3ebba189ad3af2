package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadFromDir_ValidConfig(t *testing.T) {
	dir := writeConfig(t, `agent: codex
max_attempts: 5
strict: true
followup_label: tech-debt
`)
	result, err := LoadFromDirWithWarnings(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := result.Config
	if cfg.Agent == nil || *cfg.Agent != "codex" {
		t.Errorf("expected agent codex, got %v", cfg.Agent)
	}
	if cfg.MaxAttempts == nil || *cfg.MaxAttempts != 5 {
		t.Errorf("expected max_attempts 5, got %v", cfg.MaxAttempts)
	}
	if cfg.Strict == nil || !*cfg.Strict {
		t.Errorf("expected strict true, got %v", cfg.Strict)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestLoadFromDir_NoConfig(t *testing.T) {
	result, err := LoadFromDirWithWarnings(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if result.Config == nil {
		t.Fatal("expected non-nil config")
	}
	if result.Config.Agent != nil {
		t.Errorf("expected unset agent, got %v", *result.Config.Agent)
	}
}

func TestLoadFromPath_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "agent: [unclosed")
	if _, err := LoadFromDirWithWarnings(dir); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadFromPath_UnknownKeyWarning(t *testing.T) {
	dir := writeConfig(t, "max_attemps: 5\n")
	result, err := LoadFromDirWithWarnings(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], `did you mean "max_attempts"`) {
		t.Errorf("expected suggestion in warning, got %q", result.Warnings[0])
	}
}

func TestLoadFromPath_UnknownKeyNoSuggestion(t *testing.T) {
	dir := writeConfig(t, "completely_unrelated: 1\n")
	result, err := LoadFromDirWithWarnings(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}
	if strings.Contains(result.Warnings[0], "did you mean") {
		t.Errorf("unexpected suggestion in warning: %q", result.Warnings[0])
	}
}

func TestValidate(t *testing.T) {
	strPtr := func(s string) *string { return &s }
	intPtr := func(i int) *int { return &i }
	durPtr := func(d time.Duration) *Duration { dd := Duration(d); return &dd }

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty is valid", Config{}, false},
		{"valid agent", Config{Agent: strPtr("claude")}, false},
		{"unknown agent", Config{Agent: strPtr("chatgpt")}, true},
		{"zero max_attempts", Config{MaxAttempts: intPtr(0)}, true},
		{"negative timeout", Config{Timeout: durPtr(-time.Second)}, true},
		{"positive timeout", Config{Timeout: durPtr(time.Minute)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{"go format", "timeout: 5m", 5 * time.Minute, false},
		{"seconds int", "timeout: 300", 300 * time.Second, false},
		{"invalid string", "timeout: fast", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.yaml+"\n")
			result, err := LoadFromDirWithWarnings(dir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := result.Config.Timeout.AsDuration(); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLoadEnvState(t *testing.T) {
	t.Setenv("ARL_AGENT", "gemini")
	t.Setenv("ARL_MAX_ATTEMPTS", "7")
	t.Setenv("ARL_STRICT", "true")
	t.Setenv("ARL_TIMEOUT", "90")

	state := LoadEnvState()
	if !state.AgentSet || state.Agent != "gemini" {
		t.Errorf("expected agent gemini, got %+v", state)
	}
	if !state.MaxAttemptsSet || state.MaxAttempts != 7 {
		t.Errorf("expected max attempts 7, got %+v", state)
	}
	if !state.StrictSet || !state.Strict {
		t.Errorf("expected strict true, got %+v", state)
	}
	if !state.TimeoutSet || state.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %+v", state)
	}
}

func TestLoadEnvState_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("ARL_MAX_ATTEMPTS", "lots")
	t.Setenv("ARL_STRICT", "definitely")

	state := LoadEnvState()
	if state.MaxAttemptsSet {
		t.Error("non-numeric ARL_MAX_ATTEMPTS should be ignored")
	}
	if state.StrictSet {
		t.Error("non-boolean ARL_STRICT should be ignored")
	}
}

func TestResolvePrecedence(t *testing.T) {
	agentCfg := "codex"
	attempts := 5
	cfg := &Config{Agent: &agentCfg, MaxAttempts: &attempts}

	// Defaults only.
	resolved := Resolve(nil, EnvState{}, FlagState{}, ResolvedConfig{})
	if resolved.MaxAttempts != 5 || resolved.Agent != "" || !resolved.Autofix || !resolved.Publish {
		t.Errorf("unexpected defaults: %+v", resolved)
	}

	// Config file over defaults.
	resolved = Resolve(cfg, EnvState{}, FlagState{}, ResolvedConfig{})
	if resolved.Agent != "codex" || resolved.MaxAttempts != 5 {
		t.Errorf("config values not applied: %+v", resolved)
	}

	// Env over config file.
	env := EnvState{Agent: "claude", AgentSet: true}
	resolved = Resolve(cfg, env, FlagState{}, ResolvedConfig{})
	if resolved.Agent != "claude" {
		t.Errorf("env should override config, got %+v", resolved)
	}
	if resolved.MaxAttempts != 5 {
		t.Errorf("unset env should not clobber config, got %+v", resolved)
	}

	// Flags over env.
	resolved = Resolve(cfg, env, FlagState{AgentSet: true}, ResolvedConfig{Agent: "gemini"})
	if resolved.Agent != "gemini" {
		t.Errorf("flag should override env, got %+v", resolved)
	}
}

func TestResolveExplicitFalseFlag(t *testing.T) {
	enabled := true
	cfg := &Config{Autofix: &enabled}
	resolved := Resolve(cfg, EnvState{}, FlagState{AutofixSet: true}, ResolvedConfig{Autofix: false})
	if resolved.Autofix {
		t.Error("explicit --no-autofix must override config file true")
	}
}

func TestFindSimilar(t *testing.T) {
	if got := findSimilar("agnt", knownTopLevelKeys); got != "agent" {
		t.Errorf("expected agent, got %q", got)
	}
	if got := findSimilar("zzzzzzzz", knownTopLevelKeys); got != "" {
		t.Errorf("expected no suggestion, got %q", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"agent", "agent", 0},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
