package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML settings layout. Tri-state booleans use
// pointers so that "unset" resolves to the documented default rather
// than false.
type File struct {
	Settings struct {
		EnforcePolicies        *bool  `yaml:"enforce_policies"`
		RequireApprovals       *bool  `yaml:"require_approvals"`
		ApprovalTimeoutMinutes int    `yaml:"approval_timeout_minutes"`
		AutoApprove            *bool  `yaml:"auto_approve"`
		RulesPath              string `yaml:"rules_path"`
		OPAPolicyPath          string `yaml:"opa_policy_path"`
		AuditLogDir            string `yaml:"audit_log_dir"`
		HistoryDB              string `yaml:"history_db"`
		WebhookURL             string `yaml:"webhook_url"`
	} `yaml:"settings"`
}

// Config is the runtime configuration for the orchestration core.
type Config struct {
	EnforcePolicies  bool
	RequireApprovals bool
	ApprovalTimeout  time.Duration
	AutoApprove      bool
	RulesPath        string
	OPAPolicyPath    string
	AuditLogDir      string
	HistoryDB        string
	WebhookURL       string
}

// Load reads a settings YAML file into a runtime Config. A missing file
// is not an error: the core degrades to defaults (fail open, same stance
// as the missing rules file).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses YAML settings data into a runtime Config.
func LoadBytes(data []byte) (*Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	cfg := DefaultConfig()
	s := f.Settings

	if s.EnforcePolicies != nil {
		cfg.EnforcePolicies = *s.EnforcePolicies
	}
	if s.RequireApprovals != nil {
		cfg.RequireApprovals = *s.RequireApprovals
	}
	if s.AutoApprove != nil {
		cfg.AutoApprove = *s.AutoApprove
	}
	if s.ApprovalTimeoutMinutes < 0 {
		return nil, fmt.Errorf("approval_timeout_minutes must not be negative, got %d", s.ApprovalTimeoutMinutes)
	}
	if s.ApprovalTimeoutMinutes > 0 {
		cfg.ApprovalTimeout = time.Duration(s.ApprovalTimeoutMinutes) * time.Minute
	}
	if s.RulesPath != "" {
		cfg.RulesPath = expandHome(s.RulesPath)
	}
	if s.OPAPolicyPath != "" {
		cfg.OPAPolicyPath = expandHome(s.OPAPolicyPath)
	}
	if s.AuditLogDir != "" {
		cfg.AuditLogDir = expandHome(s.AuditLogDir)
	}
	if s.HistoryDB != "" {
		cfg.HistoryDB = expandHome(s.HistoryDB)
	}
	cfg.WebhookURL = s.WebhookURL

	return cfg, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
