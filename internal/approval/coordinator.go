package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsgate/opsgate/api"
)

// AutoApprover is the resolver recorded when the coordinator runs in
// auto-approve mode.
const AutoApprover = "system:auto-approve"

// Notifier delivers a newly created approval request to an external
// channel. Delivery is best-effort: a failure is logged by the coordinator
// and never fails the approval request itself.
type Notifier interface {
	Notify(ctx context.Context, req *Request) error
}

// Coordinator manages pending approval requests. RequestApproval blocks
// until a request is resolved, times out, or the surrounding context is
// canceled; Approve and Deny resolve requests from the outside. Safe for
// concurrent use across chains.
type Coordinator struct {
	mu       sync.RWMutex
	requests map[string]*Request

	timeout     time.Duration
	autoApprove bool
	notifier    Notifier
	logger      *slog.Logger
}

// NewCoordinator creates a coordinator with the given pending-request
// timeout. A nil notifier skips notification without altering resolution
// behavior.
func NewCoordinator(timeout time.Duration, autoApprove bool, notifier Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		requests:    make(map[string]*Request),
		timeout:     timeout,
		autoApprove: autoApprove,
		notifier:    notifier,
		logger:      logger,
	}
}

// RequestApproval creates a pending request, notifies the configured
// channel, and blocks until the request is resolved. Expiry of the timeout
// resolves the request as timed out rather than hanging; context
// cancellation resolves it as denied and returns the context error so the
// caller can record a cancellation rather than a decision.
func (c *Coordinator) RequestApproval(ctx context.Context, call *api.ToolCall, reason string) (*Resolution, error) {
	req := c.enqueue(call, reason)

	c.notify(ctx, req)

	c.logger.Info("approval requested",
		"approval_id", req.ApprovalID, "tool", call.Name, "reason", reason)

	if c.autoApprove {
		c.resolve(req.ApprovalID, StatusApproved, AutoApprover, "auto-approved")
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-req.Wait():
		return c.resolution(req), nil

	case <-timer.C:
		c.expire(req)
		return c.resolution(req), nil

	case <-ctx.Done():
		c.resolve(req.ApprovalID, StatusDenied, "system:canceled", "request canceled before resolution")
		return nil, ctx.Err()
	}
}

// Approve marks a pending request as approved. Returns false if the
// request is unknown or already resolved.
func (c *Coordinator) Approve(id, approverID, comments string) bool {
	return c.resolve(id, StatusApproved, approverID, comments)
}

// Deny marks a pending request as denied. Returns false if the request is
// unknown or already resolved.
func (c *Coordinator) Deny(id, approverID, reason string) bool {
	return c.resolve(id, StatusDenied, approverID, reason)
}

// Get returns the request with the given id.
func (c *Coordinator) Get(id string) (*Request, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	req, ok := c.requests[id]
	return req, ok
}

// Pending returns all unresolved requests.
func (c *Coordinator) Pending() []*Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var pending []*Request
	for _, req := range c.requests {
		if !req.Status.Resolved() {
			pending = append(pending, req)
		}
	}
	return pending
}

func (c *Coordinator) enqueue(call *api.ToolCall, reason string) *Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	req := &Request{
		ApprovalID:  uuid.NewString(),
		ToolCall:    call.Clone(),
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
		Status:      StatusPending,
		done:        make(chan struct{}),
	}
	c.requests[req.ApprovalID] = req
	return req
}

func (c *Coordinator) notify(ctx context.Context, req *Request) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, req); err != nil {
		c.logger.Warn("approval notification failed",
			"approval_id", req.ApprovalID, "error", err)
	}
}

func (c *Coordinator) resolve(id string, status Status, by, comments string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.requests[id]
	if !ok || req.Status.Resolved() {
		return false
	}

	now := time.Now().UTC()
	approved := status == StatusApproved
	req.Status = status
	req.ResolvedAt = &now
	req.IsApproved = &approved
	req.ApprovedBy = by
	req.Comments = comments

	close(req.done)

	c.logger.Info("approval resolved",
		"approval_id", id, "status", status, "by", by)
	return true
}

// expire resolves a request as timed out, unless a concurrent Approve or
// Deny already resolved it between the timer firing and the lock.
func (c *Coordinator) expire(req *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Status.Resolved() {
		return
	}

	now := time.Now().UTC()
	approved := false
	req.Status = StatusTimedOut
	req.ResolvedAt = &now
	req.IsApproved = &approved

	close(req.done)

	c.logger.Warn("approval timed out",
		"approval_id", req.ApprovalID, "tool", req.ToolCall.Name, "timeout", c.timeout)
}

func (c *Coordinator) resolution(req *Request) *Resolution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return resolutionOf(req, c.timeout)
}
