package governance

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/opsgate/opsgate/api"
)

// Checker is the interface for governance evaluation backends.
type Checker interface {
	// CheckPolicy evaluates one proposed tool invocation against the
	// current rule set. Policy outcomes (violations, approval
	// requirements) are data on the result, not errors.
	CheckPolicy(ctx context.Context, call *api.ToolCall) (*api.GovernanceResult, error)

	// Reload replaces the rule set from the source (file, remote, etc.).
	Reload(ctx context.Context) error
}

// Options control evaluation behavior. Both default to true.
type Options struct {
	// EnforcePolicies globally disables evaluation when false: every
	// call is allowed with no violations (dev/test escape hatch).
	EnforcePolicies bool

	// RequireApprovals downgrades require_approval rules to warn-only
	// behavior when false.
	RequireApprovals bool
}

// ruleSet is an immutable snapshot of compiled rules. Reload builds a new
// snapshot and swaps the pointer, so concurrent evaluators never observe a
// half-updated set.
type ruleSet struct {
	rules      []AtoRule
	regexCache map[string]*regexp.Regexp
}

// RuleEngine evaluates tool calls against a YAML rule set. All matching
// rules contribute to the result; evaluation never short-circuits on the
// first match. It is safe for concurrent use.
type RuleEngine struct {
	mu     sync.RWMutex
	set    *ruleSet
	path   string
	opts   Options
	logger *slog.Logger
}

// NewRuleEngine creates a rule engine reading rules from path. A missing or
// unparsable rule file degrades to an empty rule set: the file is
// operational configuration, and its absence fails open rather than
// blocking every call.
func NewRuleEngine(path string, opts Options, logger *slog.Logger) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &RuleEngine{path: path, opts: opts, logger: logger}
	_ = e.Reload(context.Background())
	return e
}

// NewRuleEngineFromRules creates a rule engine over an already-loaded set.
func NewRuleEngineFromRules(rf *RuleFile, opts Options, logger *slog.Logger) (*RuleEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set, err := compile(rf.Rules)
	if err != nil {
		return nil, err
	}
	return &RuleEngine{set: set, opts: opts, logger: logger}, nil
}

// CheckPolicy evaluates the call against every rule in the set:
//
//   - block / deny matches each append a violation and clear Allowed
//   - require_approval sets RequiresApproval (first match supplies the
//     reason) unless approvals are disabled, which degrades it to warn
//   - warn matches are logged only
//
// No match means default allow. The evaluation is a pure function of
// (rule set, call): no I/O, no hidden state, and never a non-nil error.
func (e *RuleEngine) CheckPolicy(_ context.Context, call *api.ToolCall) (*api.GovernanceResult, error) {
	if !e.opts.EnforcePolicies {
		return api.Allow(), nil
	}

	e.mu.RLock()
	set := e.set
	e.mu.RUnlock()

	result := api.Allow()
	if set == nil {
		return result, nil
	}

	for i := range set.rules {
		rule := &set.rules[i]
		if !set.matches(rule, call) {
			continue
		}

		switch rule.Action {
		case api.ActionBlock, api.ActionDeny:
			result.Allowed = false
			result.Violations = append(result.Violations, violationText(rule))
		case api.ActionRequireApproval:
			if !e.opts.RequireApprovals {
				e.logger.Info("approval rule treated as warning",
					"rule", rule.ID, "tool", call.Name)
				continue
			}
			if !result.RequiresApproval {
				result.RequiresApproval = true
				result.Reason = violationText(rule)
			}
		case api.ActionWarn:
			e.logger.Warn("governance warning",
				"rule", rule.ID, "control", rule.Control, "tool", call.Name)
		}
	}

	return result, nil
}

// Reload replaces the rule snapshot from the file source. A missing or
// unparsable file is logged and replaced with an empty set (fail open).
func (e *RuleEngine) Reload(_ context.Context) error {
	var rules []AtoRule
	if e.path != "" {
		rf, err := LoadFile(e.path)
		if err != nil {
			e.logger.Warn("rule source unavailable, evaluating with empty rule set",
				"path", e.path, "error", err)
		} else {
			rules = rf.Rules
		}
	}

	set, err := compile(rules)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.set = set
	e.mu.Unlock()
	return nil
}

// Rules returns the rules in the current snapshot.
func (e *RuleEngine) Rules() []AtoRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.set == nil {
		return nil
	}
	return e.set.rules
}

func compile(rules []AtoRule) (*ruleSet, error) {
	set := &ruleSet{
		rules:      rules,
		regexCache: make(map[string]*regexp.Regexp),
	}
	for _, rule := range rules {
		for key, am := range rule.Match.Arguments {
			if am.Regex != "" {
				re, err := regexp.Compile(am.Regex)
				if err != nil {
					return nil, fmt.Errorf("rule %q argument %q: %w", rule.ID, key, err)
				}
				set.regexCache[rule.ID+":"+key] = re
			}
		}
	}
	return set, nil
}

func violationText(rule *AtoRule) string {
	if rule.Description != "" {
		return fmt.Sprintf("%s: %s", rule.ID, rule.Description)
	}
	return fmt.Sprintf("%s: %s", rule.ID, rule.Action)
}

func (s *ruleSet) matches(rule *AtoRule, call *api.ToolCall) bool {
	if rule.Match.Tool != "" && rule.Match.Tool != call.Name {
		return false
	}

	if len(rule.Match.Arguments) > 0 {
		if len(call.Arguments) == 0 {
			return false
		}
		for key, am := range rule.Match.Arguments {
			if key == "_any_value" {
				if !s.matchAnyValue(rule.ID, key, am, call.Arguments) {
					return false
				}
				continue
			}
			val, ok := call.Arguments[key]
			if !ok {
				return false
			}
			if !s.matchArgument(rule.ID, key, am, val) {
				return false
			}
		}
	}

	return true
}

func (s *ruleSet) matchAnyValue(ruleID, matchKey string, am ArgumentMatch, args map[string]any) bool {
	for _, v := range args {
		if s.matchArgument(ruleID, matchKey, am, v) {
			return true
		}
	}
	return false
}

func (s *ruleSet) matchArgument(ruleID, key string, am ArgumentMatch, val any) bool {
	str := fmt.Sprintf("%v", val)

	if am.Exact != "" {
		return str == am.Exact
	}

	if am.Regex != "" {
		re, ok := s.regexCache[ruleID+":"+key]
		if !ok {
			return false
		}
		return re.MatchString(str)
	}

	return true
}
