package api

import "time"

// IntentType is the coarse classification of a user turn.
type IntentType string

const (
	IntentToolExecution      IntentType = "tool_execution"
	IntentInformationRequest IntentType = "information_request"
	IntentConversational     IntentType = "conversational"
)

// StepStatus is the lifecycle state of a chain step. Transitions are
// monotonic: pending -> running -> completed|failed, never backwards.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// ToolStep is one ordered step of a tool chain. StepNumber is 1-based and
// contiguous within a chain. Result is set only once the step reaches a
// terminal state; a failed step may carry a nil result and an error message.
type ToolStep struct {
	StepNumber        int            `json:"step_number"`
	ToolName          string         `json:"tool_name"`
	Action            string         `json:"action,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Description       string         `json:"description,omitempty"`
	DependsOnPrevious bool           `json:"depends_on_previous"`
	Status            StepStatus     `json:"status"`
	Result            any            `json:"result,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	DurationMs        int64          `json:"duration_ms,omitempty"`
}

// Clone returns a copy with its own parameter map, so report snapshots
// stay stable when the executor keeps mutating the original.
func (s *ToolStep) Clone() *ToolStep {
	out := *s
	if s.Parameters != nil {
		out.Parameters = make(map[string]any, len(s.Parameters))
		for k, v := range s.Parameters {
			out.Parameters[k] = v
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ToolCall converts the step into the invocation request the governance
// layer evaluates.
func (s *ToolStep) ToolCall() *ToolCall {
	call := &ToolCall{Name: s.ToolName}
	if s.Parameters != nil {
		call.Arguments = make(map[string]any, len(s.Parameters))
		for k, v := range s.Parameters {
			call.Arguments[k] = v
		}
	}
	return call
}

// Alternative is a non-winning classification candidate, retained so a
// caller can offer "did you mean" choices instead of discarding signal.
type Alternative struct {
	ToolName   string  `json:"tool_name"`
	Confidence float64 `json:"confidence"`
}

// IntentResult is the structured classification of one user turn. Produced
// once per turn and not mutated afterward; a new turn produces a new result.
type IntentResult struct {
	IntentType       IntentType     `json:"intent_type"`
	Category         string         `json:"category,omitempty"`
	Action           string         `json:"action,omitempty"`
	Confidence       float64        `json:"confidence"`
	ToolName         string         `json:"tool_name,omitempty"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	RequiresToolChain bool          `json:"requires_tool_chain"`
	ToolChain        []*ToolStep    `json:"tool_chain,omitempty"`
	RequiresFollowUp bool           `json:"requires_follow_up"`
	FollowUpPrompt   string         `json:"follow_up_prompt,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
	Alternatives     []Alternative  `json:"alternatives,omitempty"`

	// IntentID links the result to its history record when one was written.
	IntentID string `json:"intent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}
