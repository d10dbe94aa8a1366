package config

import "time"

const DefaultApprovalTimeout = 60 * time.Minute

// DefaultConfig returns the configuration used when no settings file is
// given: policies enforced, approvals required, auto-approve resolution.
func DefaultConfig() *Config {
	return &Config{
		EnforcePolicies:  true,
		RequireApprovals: true,
		ApprovalTimeout:  DefaultApprovalTimeout,
		AutoApprove:      true,
		AuditLogDir:      expandHome("~/.opsgate/audit"),
	}
}
