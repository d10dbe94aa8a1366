package governance

import (
	"github.com/opsgate/opsgate/api"
)

// RuleFile represents the top-level YAML governance rule set.
type RuleFile struct {
	Version int       `yaml:"version" json:"version"`
	Rules   []AtoRule `yaml:"rules" json:"rules"`
}

// AtoRule is a single governance rule: a tool-invocation predicate mapped
// to an action. Control is an informational compliance control reference
// (e.g. "AC-6") and never affects evaluation.
type AtoRule struct {
	ID          string         `yaml:"id" json:"id"`
	Control     string         `yaml:"control,omitempty" json:"control,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Action      api.RuleAction `yaml:"action" json:"action"`
	Match       RuleMatch      `yaml:"match" json:"match"`
}

// RuleMatch specifies the conditions under which a rule applies to a call.
// An empty Tool matches every tool. All listed argument conditions must
// hold for the rule to match.
type RuleMatch struct {
	Tool      string                   `yaml:"tool,omitempty" json:"tool,omitempty"`
	Arguments map[string]ArgumentMatch `yaml:"arguments,omitempty" json:"arguments,omitempty"`
}

// ArgumentMatch is a matching condition for a single argument value.
// The special key "_any_value" applies the condition to every argument.
type ArgumentMatch struct {
	Exact string `yaml:"exact,omitempty" json:"exact,omitempty"`
	Regex string `yaml:"regex,omitempty" json:"regex,omitempty"`
}
