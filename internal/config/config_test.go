package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-settings.yaml"))
	if err != nil {
		t.Fatalf("missing settings file must not be an error: %v", err)
	}
	if !cfg.EnforcePolicies || !cfg.RequireApprovals {
		t.Errorf("defaults should enforce policies and require approvals: %+v", cfg)
	}
	if cfg.ApprovalTimeout != DefaultApprovalTimeout {
		t.Errorf("ApprovalTimeout = %s, want %s", cfg.ApprovalTimeout, DefaultApprovalTimeout)
	}
	if !cfg.AutoApprove {
		t.Error("auto-approve should default on for single-operator runs")
	}
	if cfg.AuditLogDir == "" {
		t.Error("audit log directory must have a default")
	}
}

func TestLoadBytes_Overrides(t *testing.T) {
	data := []byte(`
settings:
  enforce_policies: false
  require_approvals: false
  approval_timeout_minutes: 5
  auto_approve: false
  rules_path: /etc/opsgate/rules.yaml
  opa_policy_path: /etc/opsgate/policy.rego
  audit_log_dir: /var/log/opsgate
  history_db: /var/lib/opsgate/history.db
  webhook_url: https://hooks.example.com/approvals
`)
	cfg, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EnforcePolicies || cfg.RequireApprovals || cfg.AutoApprove {
		t.Errorf("explicit false overrides lost: %+v", cfg)
	}
	if cfg.ApprovalTimeout != 5*time.Minute {
		t.Errorf("ApprovalTimeout = %s", cfg.ApprovalTimeout)
	}
	if cfg.RulesPath != "/etc/opsgate/rules.yaml" {
		t.Errorf("RulesPath = %s", cfg.RulesPath)
	}
	if cfg.OPAPolicyPath != "/etc/opsgate/policy.rego" {
		t.Errorf("OPAPolicyPath = %s", cfg.OPAPolicyPath)
	}
	if cfg.WebhookURL != "https://hooks.example.com/approvals" {
		t.Errorf("WebhookURL = %s", cfg.WebhookURL)
	}
}

func TestLoadBytes_UnsetBooleansKeepDefaults(t *testing.T) {
	// A file that only sets paths must not flip the tri-state booleans.
	data := []byte(`
settings:
  rules_path: /etc/opsgate/rules.yaml
`)
	cfg, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.EnforcePolicies || !cfg.RequireApprovals || !cfg.AutoApprove {
		t.Errorf("unset booleans should keep their defaults: %+v", cfg)
	}
	if cfg.ApprovalTimeout != DefaultApprovalTimeout {
		t.Errorf("unset timeout should keep default, got %s", cfg.ApprovalTimeout)
	}
}

func TestLoadBytes_NegativeTimeout(t *testing.T) {
	_, err := LoadBytes([]byte("settings:\n  approval_timeout_minutes: -1\n"))
	if err == nil || !strings.Contains(err.Error(), "approval_timeout_minutes") {
		t.Fatalf("expected a negative timeout error, got %v", err)
	}
}

func TestLoadBytes_InvalidYAML(t *testing.T) {
	if _, err := LoadBytes([]byte("settings: [not: a map")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestExpandHome(t *testing.T) {
	cfg, err := LoadBytes([]byte("settings:\n  history_db: ~/state/history.db\n"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(cfg.HistoryDB, "~") {
		t.Errorf("home directory not expanded: %s", cfg.HistoryDB)
	}
	if !strings.HasSuffix(cfg.HistoryDB, filepath.Join("state", "history.db")) {
		t.Errorf("unexpected expansion: %s", cfg.HistoryDB)
	}
}
