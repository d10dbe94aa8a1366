// Package metrics tracks orchestration counters using atomic operations
// for lock-free concurrency across parallel chains.
package metrics

import "sync/atomic"

// Metrics counts pipeline events. The zero value is ready to use.
type Metrics struct {
	classifications   atomic.Int64
	chains            atomic.Int64
	stepsCompleted    atomic.Int64
	stepsFailed       atomic.Int64
	allows            atomic.Int64
	blocks            atomic.Int64
	approvalsRequired atomic.Int64
	approvalsDenied   atomic.Int64
	approvalTimeouts  atomic.Int64
}

// RecordClassification records one classified user turn.
func (m *Metrics) RecordClassification() { m.classifications.Add(1) }

// RecordChain records one chain execution start.
func (m *Metrics) RecordChain() { m.chains.Add(1) }

// RecordStep records a step outcome.
func (m *Metrics) RecordStep(completed bool) {
	if completed {
		m.stepsCompleted.Add(1)
	} else {
		m.stepsFailed.Add(1)
	}
}

// RecordDecision records a governance decision.
func (m *Metrics) RecordDecision(allowed, requiresApproval bool) {
	if !allowed {
		m.blocks.Add(1)
		return
	}
	m.allows.Add(1)
	if requiresApproval {
		m.approvalsRequired.Add(1)
	}
}

// RecordApprovalDenied records an explicit approval denial.
func (m *Metrics) RecordApprovalDenied() { m.approvalsDenied.Add(1) }

// RecordApprovalTimeout records an approval that expired unresolved.
func (m *Metrics) RecordApprovalTimeout() { m.approvalTimeouts.Add(1) }

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Classifications:   m.classifications.Load(),
		Chains:            m.chains.Load(),
		StepsCompleted:    m.stepsCompleted.Load(),
		StepsFailed:       m.stepsFailed.Load(),
		Allows:            m.allows.Load(),
		Blocks:            m.blocks.Load(),
		ApprovalsRequired: m.approvalsRequired.Load(),
		ApprovalsDenied:   m.approvalsDenied.Load(),
		ApprovalTimeouts:  m.approvalTimeouts.Load(),
	}
}

// Snapshot is a serializable point-in-time metrics view.
type Snapshot struct {
	Classifications   int64 `json:"classifications"`
	Chains            int64 `json:"chains"`
	StepsCompleted    int64 `json:"steps_completed"`
	StepsFailed       int64 `json:"steps_failed"`
	Allows            int64 `json:"allows"`
	Blocks            int64 `json:"blocks"`
	ApprovalsRequired int64 `json:"approvals_required"`
	ApprovalsDenied   int64 `json:"approvals_denied"`
	ApprovalTimeouts  int64 `json:"approval_timeouts"`
}
