package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsgate/opsgate/api"
	"github.com/opsgate/opsgate/internal/approval"
	"github.com/opsgate/opsgate/internal/audit"
	"github.com/opsgate/opsgate/internal/chain"
	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/governance"
	"github.com/opsgate/opsgate/internal/history"
	"github.com/opsgate/opsgate/internal/intent"
	"github.com/opsgate/opsgate/internal/metrics"
	"github.com/opsgate/opsgate/internal/notify"
	"github.com/opsgate/opsgate/internal/registry"
)

var (
	runUser    string
	runSession string
	runDryRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Classify a natural-language request and execute it",
	Long: `Classify a request into a tool invocation or tool chain, gate each step
through the governance engine, and execute it with the builtin tool set.`,
	Example: `  opsgate run "discover resources in staging then scan them for compliance"
  opsgate run -c settings.yaml --user alice "analyze costs for the last 30 days"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "operator", "user id recorded in history and audit")
	runCmd.Flags().StringVar(&runSession, "session", "", "session id recorded in history")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "classify only, do not execute")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := strings.Join(args, " ")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	var store history.Store
	if cfg.HistoryDB != "" {
		sqlStore, err := history.OpenSQLite(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		store = sqlStore
	} else {
		store = history.NewMemoryStore()
	}
	defer func() { _ = store.Close() }()

	auditor, err := audit.NewJSONLStore(cfg.AuditLogDir)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer func() { _ = auditor.Close() }()

	var checker governance.Checker
	if cfg.OPAPolicyPath != "" {
		checker, err = governance.NewOPAEngine(cfg.OPAPolicyPath)
		if err != nil {
			return fmt.Errorf("loading OPA policy: %w", err)
		}
	} else {
		checker = governance.NewRuleEngine(cfg.RulesPath, governance.Options{
			EnforcePolicies:  cfg.EnforcePolicies,
			RequireApprovals: cfg.RequireApprovals,
		}, logger)
	}

	var notifier approval.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, logger)
	}
	coordinator := approval.NewCoordinator(cfg.ApprovalTimeout, cfg.AutoApprove, notifier, logger)

	reg := registry.NewBuiltinRegistry()
	classifier := intent.NewClassifier(reg, store, logger)
	counters := &metrics.Metrics{}

	result := classifier.Classify(ctx, runUser, input)
	counters.RecordClassification()

	rec, err := store.RecordIntent(ctx, &history.IntentRecord{
		UserID:     runUser,
		SessionID:  runSession,
		UserInput:  input,
		Category:   result.Category,
		Action:     result.Action,
		Confidence: result.Confidence,
		ToolName:   result.ToolName,
		Parameters: result.Parameters,
	})
	if err != nil {
		return fmt.Errorf("recording intent: %w", err)
	}
	result.IntentID = rec.ID

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(result); err != nil {
		return err
	}

	if runDryRun || result.IntentType == api.IntentConversational || result.RequiresFollowUp {
		return nil
	}

	executor, err := chain.NewExecutor(chain.Config{
		Checker:  checker,
		Approver: coordinator,
		Invoker:  reg,
		Audit:    auditor,
		History:  store,
		Metrics:  counters,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	report, err := executor.Execute(ctx, result)
	if err != nil {
		return fmt.Errorf("executing chain: %w", err)
	}

	if err := enc.Encode(report.Steps()); err != nil {
		return err
	}

	logger.Debug("run finished", "metrics", counters.Snapshot())

	if failed := report.FirstFailure(); failed != nil {
		return fmt.Errorf("step %d (%s) failed: %s", failed.StepNumber, failed.ToolName, failed.ErrorMessage)
	}
	return nil
}
