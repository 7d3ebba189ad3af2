// Package config provides configuration file support for arl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richhaase/agentic-review-loop/internal/agent"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = ".arl.yaml"

// Duration is a custom type that handles YAML duration parsing.
// Supports both Go duration format ("5m", "300s") and numeric seconds.
type Duration time.Duration

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v) * time.Second)
	default:
		return fmt.Errorf("invalid duration type: %T", v)
	}
	return nil
}

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Config represents the arl configuration file. Pointer fields distinguish
// "unset" from zero values so precedence resolution works.
type Config struct {
	Agent         *string   `yaml:"agent"`
	AgentCmd      *string   `yaml:"agent_cmd"`
	Binary        *string   `yaml:"binary"`
	MaxAttempts   *int      `yaml:"max_attempts"`
	Strict        *bool     `yaml:"strict"`
	Autofix       *bool     `yaml:"autofix"`
	Autopush      *bool     `yaml:"autopush"`
	Publish       *bool     `yaml:"publish"`
	FollowupLabel *string   `yaml:"followup_label"`
	Timeout       *Duration `yaml:"timeout"`
}

// LoadResult contains the loaded config and any warnings encountered.
type LoadResult struct {
	Config   *Config
	Warnings []string
}

// LoadFromDirWithWarnings reads .arl.yaml from the specified directory.
// Returns an empty config (not error) if the file doesn't exist.
func LoadFromDirWithWarnings(dir string) (*LoadResult, error) {
	return LoadFromPathWithWarnings(filepath.Join(dir, ConfigFileName))
}

// LoadFromPathWithWarnings reads a config file and returns warnings for
// unknown keys. Returns an empty config (not error) if the file doesn't
// exist; returns an error if the file exists but is invalid.
func LoadFromPathWithWarnings(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &LoadResult{Config: &Config{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	warnings := checkUnknownKeys(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigFileName, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigFileName, err)
	}

	return &LoadResult{Config: &cfg, Warnings: warnings}, nil
}

// knownTopLevelKeys are the valid top-level keys in the config file.
var knownTopLevelKeys = []string{"agent", "agent_cmd", "binary", "max_attempts", "strict", "autofix", "autopush", "publish", "followup_label", "timeout"}

// checkUnknownKeys checks for unknown keys in the YAML data and returns warnings.
func checkUnknownKeys(data []byte) []string {
	var warnings []string

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		// If we can't parse, let the main parser handle the error
		return nil
	}

	for key := range raw {
		if !slices.Contains(knownTopLevelKeys, key) {
			warning := fmt.Sprintf("unknown key %q in %s", key, ConfigFileName)
			if suggestion := findSimilar(key, knownTopLevelKeys); suggestion != "" {
				warning += fmt.Sprintf(" (did you mean %q?)", suggestion)
			}
			warnings = append(warnings, warning)
		}
	}

	return warnings
}

// findSimilar finds the most similar string from candidates using Levenshtein distance.
// Returns empty string if no candidate is similar enough (threshold: 3 edits).
func findSimilar(input string, candidates []string) string {
	const maxDistance = 3
	bestMatch := ""
	bestDistance := maxDistance + 1

	for _, candidate := range candidates {
		dist := levenshtein(input, candidate)
		if dist < bestDistance {
			bestDistance = dist
			bestMatch = candidate
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshtein calculates the Levenshtein distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	matrix := make([][]int, len(ra)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(rb)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(ra)][len(rb)]
}

// providerNames returns the supported provider names as strings.
func providerNames() []string {
	names := make([]string, len(agent.SupportedProviders))
	for i, p := range agent.SupportedProviders {
		names[i] = string(p)
	}
	return names
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	if c.MaxAttempts != nil && *c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", *c.MaxAttempts)
	}
	if c.Timeout != nil && *c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %s", time.Duration(*c.Timeout))
	}
	if c.Agent != nil && !slices.Contains(providerNames(), *c.Agent) {
		return fmt.Errorf("agent must be one of %v, got %q", providerNames(), *c.Agent)
	}
	return nil
}

// Defaults holds the built-in default values.
var Defaults = ResolvedConfig{
	MaxAttempts:   5,
	Autofix:       true,
	Publish:       true,
	FollowupLabel: "bug",
	Timeout:       10 * time.Minute,
}

// ResolvedConfig holds the final resolved configuration values.
type ResolvedConfig struct {
	Agent         string
	AgentCmd      string
	Binary        string
	MaxAttempts   int
	Strict        bool
	Autofix       bool
	Autopush      bool
	Publish       bool
	FollowupLabel string
	Timeout       time.Duration
}

// FlagState tracks whether a flag was explicitly set.
type FlagState struct {
	AgentSet         bool
	AgentCmdSet      bool
	BinarySet        bool
	MaxAttemptsSet   bool
	StrictSet        bool
	AutofixSet       bool
	AutopushSet      bool
	PublishSet       bool
	FollowupLabelSet bool
	TimeoutSet       bool
}

// EnvState captures env var values and whether they were set.
type EnvState struct {
	Agent            string
	AgentSet         bool
	AgentCmd         string
	AgentCmdSet      bool
	Binary           string
	BinarySet        bool
	MaxAttempts      int
	MaxAttemptsSet   bool
	Strict           bool
	StrictSet        bool
	Autofix          bool
	AutofixSet       bool
	Autopush         bool
	AutopushSet      bool
	FollowupLabel    string
	FollowupLabelSet bool
	Timeout          time.Duration
	TimeoutSet       bool
}

// LoadEnvState reads ARL_* environment variables and returns their state.
func LoadEnvState() EnvState {
	var state EnvState

	if v := os.Getenv("ARL_AGENT"); v != "" {
		state.Agent = v
		state.AgentSet = true
	}
	if v := os.Getenv("ARL_AGENT_CMD"); v != "" {
		state.AgentCmd = v
		state.AgentCmdSet = true
	}
	if v := os.Getenv("ARL_BINARY"); v != "" {
		state.Binary = v
		state.BinarySet = true
	}
	if v := os.Getenv("ARL_MAX_ATTEMPTS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			state.MaxAttempts = i
			state.MaxAttemptsSet = true
		}
	}
	if v := os.Getenv("ARL_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			state.Strict = b
			state.StrictSet = true
		}
	}
	if v := os.Getenv("ARL_AUTOFIX"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			state.Autofix = b
			state.AutofixSet = true
		}
	}
	if v := os.Getenv("ARL_AUTOPUSH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			state.Autopush = b
			state.AutopushSet = true
		}
	}
	if v := os.Getenv("ARL_FOLLOWUP_LABEL"); v != "" {
		state.FollowupLabel = v
		state.FollowupLabelSet = true
	}
	if v := os.Getenv("ARL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			state.Timeout = d
			state.TimeoutSet = true
		} else if secs, err := strconv.Atoi(v); err == nil {
			state.Timeout = time.Duration(secs) * time.Second
			state.TimeoutSet = true
		}
	}

	return state
}

// Resolve merges config file values with env vars and flags.
// Precedence: flags > env vars > config file > defaults
func Resolve(cfg *Config, envState EnvState, flagState FlagState, flagValues ResolvedConfig) ResolvedConfig {
	result := Defaults

	// Apply config file values (if set)
	if cfg != nil {
		if cfg.Agent != nil {
			result.Agent = *cfg.Agent
		}
		if cfg.AgentCmd != nil {
			result.AgentCmd = *cfg.AgentCmd
		}
		if cfg.Binary != nil {
			result.Binary = *cfg.Binary
		}
		if cfg.MaxAttempts != nil {
			result.MaxAttempts = *cfg.MaxAttempts
		}
		if cfg.Strict != nil {
			result.Strict = *cfg.Strict
		}
		if cfg.Autofix != nil {
			result.Autofix = *cfg.Autofix
		}
		if cfg.Autopush != nil {
			result.Autopush = *cfg.Autopush
		}
		if cfg.Publish != nil {
			result.Publish = *cfg.Publish
		}
		if cfg.FollowupLabel != nil {
			result.FollowupLabel = *cfg.FollowupLabel
		}
		if cfg.Timeout != nil {
			result.Timeout = cfg.Timeout.AsDuration()
		}
	}

	// Apply env var values (if set)
	if envState.AgentSet {
		result.Agent = envState.Agent
	}
	if envState.AgentCmdSet {
		result.AgentCmd = envState.AgentCmd
	}
	if envState.BinarySet {
		result.Binary = envState.Binary
	}
	if envState.MaxAttemptsSet {
		result.MaxAttempts = envState.MaxAttempts
	}
	if envState.StrictSet {
		result.Strict = envState.Strict
	}
	if envState.AutofixSet {
		result.Autofix = envState.Autofix
	}
	if envState.AutopushSet {
		result.Autopush = envState.Autopush
	}
	if envState.FollowupLabelSet {
		result.FollowupLabel = envState.FollowupLabel
	}
	if envState.TimeoutSet {
		result.Timeout = envState.Timeout
	}

	// Apply flag values (if explicitly set)
	if flagState.AgentSet {
		result.Agent = flagValues.Agent
	}
	if flagState.AgentCmdSet {
		result.AgentCmd = flagValues.AgentCmd
	}
	if flagState.BinarySet {
		result.Binary = flagValues.Binary
	}
	if flagState.MaxAttemptsSet {
		result.MaxAttempts = flagValues.MaxAttempts
	}
	if flagState.StrictSet {
		result.Strict = flagValues.Strict
	}
	if flagState.AutofixSet {
		result.Autofix = flagValues.Autofix
	}
	if flagState.AutopushSet {
		result.Autopush = flagValues.Autopush
	}
	if flagState.PublishSet {
		result.Publish = flagValues.Publish
	}
	if flagState.FollowupLabelSet {
		result.FollowupLabel = flagValues.FollowupLabel
	}
	if flagState.TimeoutSet {
		result.Timeout = flagValues.Timeout
	}

	return result
}
