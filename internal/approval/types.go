package approval

import (
	"fmt"
	"time"

	"github.com/opsgate/opsgate/api"
)

// Status represents the state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusTimedOut Status = "timed_out"
)

// Resolved reports whether the status is terminal.
func (s Status) Resolved() bool {
	return s != StatusPending
}

// Request is a tracked, time-bounded request for human sign-off on a gated
// tool invocation. It correlates 1:1 with one invocation attempt. Once
// resolved the record is immutable: IsApproved is nil exactly while the
// request is pending and permanently fixed afterward.
type Request struct {
	ApprovalID  string        `json:"approval_id"`
	ToolCall    *api.ToolCall `json:"tool_call"`
	Reason      string        `json:"reason"`
	RequestedAt time.Time     `json:"requested_at"`
	Status      Status        `json:"status"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	IsApproved  *bool         `json:"is_approved,omitempty"`
	ApprovedBy  string        `json:"approved_by,omitempty"`
	Comments    string        `json:"comments,omitempty"`

	// done is signaled when the request is resolved
	done chan struct{}
}

// Wait returns a channel closed when the request reaches a terminal state.
func (r *Request) Wait() <-chan struct{} {
	return r.done
}

// Resolution is the outcome handed back to the chain executor. Outcome
// describes the decision in a form fit for transcripts: an explicit denial
// names the approver, a timeout says so.
type Resolution struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
	Status     Status `json:"status"`
	ApprovedBy string `json:"approved_by,omitempty"`
	Comments   string `json:"comments,omitempty"`
	Outcome    string `json:"outcome"`
}

func resolutionOf(r *Request, timeout time.Duration) *Resolution {
	res := &Resolution{
		ApprovalID: r.ApprovalID,
		Approved:   r.Status == StatusApproved,
		Status:     r.Status,
		ApprovedBy: r.ApprovedBy,
		Comments:   r.Comments,
	}
	switch r.Status {
	case StatusApproved:
		res.Outcome = fmt.Sprintf("approved by %s", r.ApprovedBy)
	case StatusDenied:
		res.Outcome = fmt.Sprintf("denied by %s", r.ApprovedBy)
		if r.Comments != "" {
			res.Outcome += ": " + r.Comments
		}
	case StatusTimedOut:
		res.Outcome = fmt.Sprintf("timed out after %s without resolution", timeout)
	}
	return res
}
