package api

import (
	"fmt"
	"strings"
	"time"
)

// ToolCall is one concrete tool invocation request. Immutable once
// constructed; governance and execution layers read it, never modify it.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Clone returns a shallow copy with its own argument map.
func (c *ToolCall) Clone() *ToolCall {
	out := &ToolCall{Name: c.Name}
	if c.Arguments != nil {
		out.Arguments = make(map[string]any, len(c.Arguments))
		for k, v := range c.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// RuleAction is the closed set of actions a governance rule can take.
type RuleAction string

const (
	ActionBlock           RuleAction = "block"
	ActionDeny            RuleAction = "deny"
	ActionRequireApproval RuleAction = "require_approval"
	ActionWarn            RuleAction = "warn"
)

// Valid reports whether the action is one of the known kinds.
func (a RuleAction) Valid() bool {
	switch a {
	case ActionBlock, ActionDeny, ActionRequireApproval, ActionWarn:
		return true
	}
	return false
}

// Disallows reports whether the action forbids the call outright.
// Block and Deny are distinct rule vocabularies with identical effect.
func (a RuleAction) Disallows() bool {
	return a == ActionBlock || a == ActionDeny
}

// ParseRuleAction converts an external action string to a RuleAction.
func ParseRuleAction(s string) (RuleAction, error) {
	a := RuleAction(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown rule action %q", s)
	}
	return a, nil
}

// GovernanceResult is the outcome of evaluating one tool call against the
// current rule set. Computed fresh per invocation and never persisted as an
// entity; callers write it into audit records.
type GovernanceResult struct {
	Allowed          bool     `json:"allowed"`
	Violations       []string `json:"violations,omitempty"`
	RequiresApproval bool     `json:"requires_approval"`
	Reason           string   `json:"reason,omitempty"`
}

// Allow is the default-allow result for calls no rule matches.
func Allow() *GovernanceResult {
	return &GovernanceResult{Allowed: true}
}

// AuditKind distinguishes what an audit record describes.
type AuditKind string

const (
	AuditDecision AuditKind = "decision"
	AuditApproval AuditKind = "approval"
	AuditStep     AuditKind = "step"
	AuditIntent   AuditKind = "intent"
)

// AuditRecord is a single audited event in the orchestration pipeline:
// a governance decision, an approval resolution, a chain step outcome,
// or a classified intent.
type AuditRecord struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Kind      AuditKind      `json:"kind"`
	User      string         `json:"user,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Outcome   string         `json:"outcome"`
	Rule      string         `json:"rule,omitempty"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// QueryFilter defines criteria for querying audit records.
type QueryFilter struct {
	Since   time.Time `json:"since,omitempty"`
	Until   time.Time `json:"until,omitempty"`
	Kind    AuditKind `json:"kind,omitempty"`
	User    string    `json:"user,omitempty"`
	Tool    string    `json:"tool,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

// AuditStats provides summary statistics over the in-memory audit window.
type AuditStats struct {
	Total          int            `json:"total"`
	AllowedCount   int            `json:"allowed_count"`
	BlockedCount   int            `json:"blocked_count"`
	ApprovalCount  int            `json:"approval_count"`
	CompletedSteps int            `json:"completed_steps"`
	FailedSteps    int            `json:"failed_steps"`
	ByTool         map[string]int `json:"by_tool"`
	ByUser         map[string]int `json:"by_user"`
}
