// Package chain executes ordered tool chains: each step is gated through
// the governance engine, waits on approval when required, and feeds its
// result forward to dependent steps. Execution is strictly sequential
// within a chain; independent chains run in parallel without coordination.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opsgate/opsgate/api"
	"github.com/opsgate/opsgate/internal/approval"
	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/governance"
	"github.com/opsgate/opsgate/internal/history"
	"github.com/opsgate/opsgate/internal/metrics"
)

// PreviousResultKey is the reserved parameter key under which a dependent
// step sees the previous step's result. Result propagation is injection
// under this key, not deep merging.
const PreviousResultKey = "previous_result"

// ErrNotExecutable is returned for intents with no tool resolution or an
// unresolved follow-up.
var ErrNotExecutable = errors.New("chain: intent is not executable")

// Invoker executes a named tool. The registry satisfies this; tests
// substitute their own.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// Approver blocks until a gated invocation is resolved.
type Approver interface {
	RequestApproval(ctx context.Context, call *api.ToolCall, reason string) (*approval.Resolution, error)
}

// Executor runs tool chains under governance.
type Executor struct {
	checker  governance.Checker
	approver Approver
	invoker  Invoker
	auditor  audit.Store
	store    history.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Config wires an Executor. Checker, Approver, and Invoker are required;
// the audit store, history store, and metrics are optional.
type Config struct {
	Checker  governance.Checker
	Approver Approver
	Invoker  Invoker
	Audit    audit.Store
	History  history.Store
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewExecutor creates an executor from the config.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Checker == nil {
		return nil, fmt.Errorf("chain: governance checker is required")
	}
	if cfg.Approver == nil {
		return nil, fmt.Errorf("chain: approver is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("chain: invoker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		checker:  cfg.Checker,
		approver: cfg.Approver,
		invoker:  cfg.Invoker,
		auditor:  cfg.Audit,
		store:    cfg.History,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// Report is the final state of one chain execution, keyed by step number.
// Steps are snapshots: repeated reads return the same values regardless of
// later mutation anywhere else.
type Report struct {
	steps []*api.ToolStep
}

// Steps returns the steps in execution order.
func (r *Report) Steps() []*api.ToolStep {
	return r.steps
}

// ByStep returns the step with the given 1-based number.
func (r *Report) ByStep(n int) (*api.ToolStep, bool) {
	for _, s := range r.steps {
		if s.StepNumber == n {
			return s, true
		}
	}
	return nil, false
}

// FirstFailure returns the failed step that stopped the chain, if any.
func (r *Report) FirstFailure() *api.ToolStep {
	for _, s := range r.steps {
		if s.Status == api.StepFailed {
			return s
		}
	}
	return nil
}

// Succeeded reports whether every step completed.
func (r *Report) Succeeded() bool {
	for _, s := range r.steps {
		if s.Status != api.StepCompleted {
			return false
		}
	}
	return len(r.steps) > 0
}

// Execute runs the intent's chain to completion or first failure. Steps
// not reached remain pending in the report; they are never skipped without
// record. The executor does not retry invocations — retry, if any, belongs
// to the tool implementation behind the Invoker.
func (e *Executor) Execute(ctx context.Context, intent *api.IntentResult) (*Report, error) {
	steps, err := buildSteps(intent)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordChain()
	}

	var prevResult any
	aborted := false
	for _, step := range steps {
		if aborted {
			break // remaining steps stay pending
		}

		ok := e.executeStep(ctx, intent.UserID, step, prevResult)
		if !ok {
			aborted = true
			continue
		}
		prevResult = step.Result
	}

	report := snapshot(steps)
	e.recordOutcome(ctx, intent, report)
	return report, nil
}

// executeStep runs one step through the governance gate, the approval
// wait, and the invoker. Returns false when the chain must stop.
func (e *Executor) executeStep(ctx context.Context, userID string, step *api.ToolStep, prevResult any) bool {
	call := step.ToolCall()

	result, err := e.checker.CheckPolicy(ctx, call)
	if err != nil {
		e.failStep(ctx, userID, step, fmt.Sprintf("policy evaluation error: %v", err))
		return false
	}
	if e.metrics != nil {
		e.metrics.RecordDecision(result.Allowed, result.RequiresApproval)
	}
	e.auditDecision(ctx, userID, call, result)

	if !result.Allowed {
		e.failStep(ctx, userID, step,
			"blocked by governance policy: "+strings.Join(result.Violations, "; "))
		return false
	}

	if result.RequiresApproval {
		if !e.awaitApproval(ctx, userID, step, call, result.Reason) {
			return false
		}
	}

	step.Status = api.StepRunning
	if step.DependsOnPrevious && prevResult != nil {
		if step.Parameters == nil {
			step.Parameters = make(map[string]any, 1)
		}
		step.Parameters[PreviousResultKey] = prevResult
	}

	start := time.Now()
	value, err := e.invoker.Invoke(ctx, step.ToolName, step.Parameters)
	elapsed := time.Since(start)

	if err != nil {
		step.DurationMs = elapsed.Milliseconds()
		e.failStep(ctx, userID, step, fmt.Sprintf("tool invocation failed: %v", err))
		return false
	}

	now := time.Now().UTC()
	step.Status = api.StepCompleted
	step.Result = value
	step.CompletedAt = &now
	step.DurationMs = elapsed.Milliseconds()

	if e.metrics != nil {
		e.metrics.RecordStep(true)
	}
	e.auditStep(ctx, userID, step, elapsed)
	e.logger.Info("step completed",
		"step", step.StepNumber, "tool", step.ToolName, "duration_ms", step.DurationMs)
	return true
}

// awaitApproval blocks on the coordinator. A denial or timeout fails the
// step with a reason that distinguishes the two for any transcript shown
// to the user; cancellation of the surrounding request fails the step
// rather than leaving the chain running.
func (e *Executor) awaitApproval(ctx context.Context, userID string, step *api.ToolStep, call *api.ToolCall, reason string) bool {
	res, err := e.approver.RequestApproval(ctx, call, reason)
	if err != nil {
		e.failStep(ctx, userID, step, fmt.Sprintf("approval wait canceled: %v", err))
		return false
	}

	e.auditApproval(ctx, userID, call, res)

	if !res.Approved {
		if e.metrics != nil {
			if res.Status == approval.StatusTimedOut {
				e.metrics.RecordApprovalTimeout()
			} else {
				e.metrics.RecordApprovalDenied()
			}
		}
		e.failStep(ctx, userID, step, "approval "+res.Outcome)
		return false
	}
	return true
}

func (e *Executor) failStep(ctx context.Context, userID string, step *api.ToolStep, msg string) {
	now := time.Now().UTC()
	step.Status = api.StepFailed
	step.ErrorMessage = msg
	step.CompletedAt = &now

	if e.metrics != nil {
		e.metrics.RecordStep(false)
	}
	e.auditStep(ctx, userID, step, 0)
	e.logger.Warn("step failed",
		"step", step.StepNumber, "tool", step.ToolName, "error", msg)
}

func (e *Executor) recordOutcome(ctx context.Context, intent *api.IntentResult, report *Report) {
	if e.store == nil || intent.IntentID == "" {
		return
	}

	errMsg := ""
	if failed := report.FirstFailure(); failed != nil {
		errMsg = fmt.Sprintf("step %d (%s): %s", failed.StepNumber, failed.ToolName, failed.ErrorMessage)
	}
	if _, err := e.store.UpdateOutcome(ctx, intent.IntentID, report.Succeeded(), errMsg); err != nil {
		e.logger.Warn("recording chain outcome failed",
			"intent_id", intent.IntentID, "error", err)
	}
}

func (e *Executor) auditDecision(ctx context.Context, userID string, call *api.ToolCall, result *api.GovernanceResult) {
	if e.auditor == nil {
		return
	}
	outcome := "allowed"
	if !result.Allowed {
		outcome = "blocked"
	}
	rec := &api.AuditRecord{
		Kind:      api.AuditDecision,
		User:      userID,
		Tool:      call.Name,
		Arguments: call.Arguments,
		Outcome:   outcome,
		Message:   strings.Join(result.Violations, "; "),
	}
	if result.RequiresApproval {
		rec.Message = result.Reason
	}
	e.writeAudit(ctx, rec)
}

func (e *Executor) auditApproval(ctx context.Context, userID string, call *api.ToolCall, res *approval.Resolution) {
	if e.auditor == nil {
		return
	}
	e.writeAudit(ctx, &api.AuditRecord{
		Kind:    api.AuditApproval,
		User:    userID,
		Tool:    call.Name,
		Outcome: string(res.Status),
		Rule:    res.ApprovalID,
		Message: res.Outcome,
	})
}

func (e *Executor) auditStep(ctx context.Context, userID string, step *api.ToolStep, elapsed time.Duration) {
	if e.auditor == nil {
		return
	}
	e.writeAudit(ctx, &api.AuditRecord{
		Kind:     api.AuditStep,
		User:     userID,
		Tool:     step.ToolName,
		Outcome:  string(step.Status),
		Message:  step.ErrorMessage,
		Duration: elapsed,
	})
}

func (e *Executor) writeAudit(ctx context.Context, rec *api.AuditRecord) {
	if err := e.auditor.Write(ctx, rec); err != nil {
		e.logger.Warn("audit write failed", "kind", rec.Kind, "error", err)
	}
}

// buildSteps produces the executor's working copy of the chain. A
// single-tool intent becomes a one-step chain; step numbers must be
// contiguous from 1.
func buildSteps(intent *api.IntentResult) ([]*api.ToolStep, error) {
	if intent.RequiresFollowUp {
		return nil, fmt.Errorf("%w: follow-up required: %s", ErrNotExecutable, intent.FollowUpPrompt)
	}

	if intent.RequiresToolChain {
		if len(intent.ToolChain) == 0 {
			return nil, fmt.Errorf("%w: chain intent with empty chain", ErrNotExecutable)
		}
		steps := make([]*api.ToolStep, 0, len(intent.ToolChain))
		for i, src := range intent.ToolChain {
			if src.StepNumber != i+1 {
				return nil, fmt.Errorf("chain: step numbers must be contiguous from 1, got %d at position %d", src.StepNumber, i+1)
			}
			step := src.Clone()
			step.Status = api.StepPending
			steps = append(steps, step)
		}
		return steps, nil
	}

	if intent.ToolName == "" {
		return nil, fmt.Errorf("%w: no tool resolved", ErrNotExecutable)
	}

	params := make(map[string]any, len(intent.Parameters))
	for k, v := range intent.Parameters {
		params[k] = v
	}
	return []*api.ToolStep{{
		StepNumber: 1,
		ToolName:   intent.ToolName,
		Action:     intent.Action,
		Parameters: params,
		Status:     api.StepPending,
	}}, nil
}

func snapshot(steps []*api.ToolStep) *Report {
	out := make([]*api.ToolStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Clone())
	}
	return &Report{steps: out}
}
