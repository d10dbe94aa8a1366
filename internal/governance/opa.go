package governance

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/open-policy-agent/opa/topdown"

	"github.com/opsgate/opsgate/api"
)

// OPAEngine implements the Checker interface using embedded OPA/Rego, for
// deployments whose governance posture outgrows the YAML rule vocabulary.
// Unlike the rule engine it fails closed: an evaluation error or an
// undefined document denies the call.
type OPAEngine struct {
	mu   sync.RWMutex
	path string

	query rego.PreparedEvalQuery
}

// NewOPAEngine creates a new OPA engine from a .rego policy file.
func NewOPAEngine(path string) (*OPAEngine, error) {
	e := &OPAEngine{path: path}
	if err := e.Reload(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// NewOPAEngineFromSource creates a new OPA engine from raw Rego source.
func NewOPAEngineFromSource(source string) (*OPAEngine, error) {
	e := &OPAEngine{}
	if err := e.loadSource(source); err != nil {
		return nil, err
	}
	return e, nil
}

// CheckPolicy runs the Rego policy against the given tool call.
//
// The policy must define the following in package opsgate:
//
//	allowed: bool
//	violations: [string] (optional)
//	requires_approval: bool (optional)
//	reason: string (optional)
//
// Input available to the policy:
//
//	input.tool: string
//	input.arguments: object
func (e *OPAEngine) CheckPolicy(ctx context.Context, call *api.ToolCall) (*api.GovernanceResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inputMap := map[string]any{
		"tool": call.Name,
	}
	if call.Arguments != nil {
		inputMap["arguments"] = call.Arguments
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		if topdown.IsError(err) {
			return &api.GovernanceResult{
				Allowed:    false,
				Violations: []string{"_opa_error: " + err.Error()},
			}, nil
		}
		return nil, fmt.Errorf("OPA evaluation failed: %w", err)
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &api.GovernanceResult{
			Allowed:    false,
			Violations: []string{"_opa_default: policy returned no result"},
		}, nil
	}

	resultMap, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return &api.GovernanceResult{
			Allowed:    false,
			Violations: []string{"_opa_parse_error: unexpected OPA result type"},
		}, nil
	}

	return parseOPAResult(resultMap), nil
}

// Reload re-reads the Rego policy file from disk and recompiles.
func (e *OPAEngine) Reload(_ context.Context) error {
	if e.path == "" {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("reading OPA policy file: %w", err)
	}
	return e.loadSource(string(data))
}

func (e *OPAEngine) loadSource(source string) error {
	// Parse to validate
	_, err := ast.ParseModuleWithOpts("policy.rego", source, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return fmt.Errorf("parsing Rego policy: %w", err)
	}

	store := inmem.New()

	r := rego.New(
		rego.Query("data.opsgate"),
		rego.Module("policy.rego", source),
		rego.Store(store),
	)

	query, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("preparing OPA query: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = query

	return nil
}

func parseOPAResult(m map[string]any) *api.GovernanceResult {
	result := &api.GovernanceResult{}

	if v, ok := m["allowed"].(bool); ok {
		result.Allowed = v
	}
	if vs, ok := m["violations"].([]any); ok {
		for _, v := range vs {
			if s, ok := v.(string); ok {
				result.Violations = append(result.Violations, s)
			}
		}
	}
	if v, ok := m["requires_approval"].(bool); ok {
		result.RequiresApproval = v
	}
	if r, ok := m["reason"].(string); ok {
		result.Reason = r
	}

	// A policy that denies without explaining itself still produces a
	// violation entry for the audit trail.
	if !result.Allowed && len(result.Violations) == 0 {
		result.Violations = []string{"_opa: denied by policy"}
	}

	return result
}
